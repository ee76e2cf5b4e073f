package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"go.viam.com/rdk/logging"

	"videoevents/report"
	"videoevents/segment"
)

// observation file: one "timestamp_ms,count" per line
func main() {
	err := realMain(os.Args[1:])
	if err != nil {
		panic(err)
	}
}

type observation struct {
	ts    int64
	count int
}

func realMain(args []string) error {
	ctx := context.Background()
	logger := logging.NewLogger("cli")

	obs := demo()
	if len(args) > 0 {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		obs, err = readObservations(f)
		if err != nil {
			return err
		}
	}

	seg := segment.New(segment.DefaultConfig())
	r := report.NewLogReporter(logger)

	for _, o := range obs {
		a, err := seg.Observe(o.ts, o.count, map[string]interface{}{"nb_detected_person": o.count})
		if err != nil {
			return err
		}
		if err := report.Dispatch(ctx, r, a); err != nil {
			return err
		}
	}

	st := seg.State()
	logger.Infof("%d observations, %d events started, %d updates", len(obs), st.Started, st.Updated)
	return nil
}

func readObservations(in io.Reader) ([]observation, error) {
	rd := csv.NewReader(in)
	rd.FieldsPerRecord = 2
	rd.Comment = '#'

	var out []observation
	for {
		rec, err := rd.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		ts, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad timestamp %q: %w", rec[0], err)
		}
		count, err := strconv.Atoi(rec[1])
		if err != nil {
			return nil, fmt.Errorf("bad count %q: %w", rec[1], err)
		}
		out = append(out, observation{ts, count})
	}
}

// demo is a person walking by at 10fps, leaving for 2s, and coming back for 15s.
func demo() []observation {
	var out []observation
	ts := int64(0)
	add := func(frames, count int) {
		for i := 0; i < frames; i++ {
			out = append(out, observation{ts, count})
			ts += 100
		}
	}
	add(50, 1)
	add(20, 0)
	add(150, 2)
	return out
}
