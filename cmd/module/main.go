package main

import (
	"go.viam.com/rdk/components/camera"
	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/module"
	"go.viam.com/rdk/resource"

	"videoevents"
	"videoevents/annotate"
	"videoevents/gnss"
	"videoevents/telemetry"
)

func main() {
	// ModularMain can take multiple APIModel arguments, if your module implements multiple models.
	module.ModularMain(
		resource.APIModel{API: sensor.API, Model: videoevents.VideoEventSensor},
		resource.APIModel{API: sensor.API, Model: telemetry.Model},
		resource.APIModel{API: sensor.API, Model: gnss.Model},
		resource.APIModel{API: camera.API, Model: annotate.Model},
	)
}
