package main

import (
	"lcdielectrics"

	genericcomponent "go.viam.com/rdk/components/generic"
	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/module"
	"go.viam.com/rdk/resource"
	generic "go.viam.com/rdk/services/generic"
)

func main() {
	module.ModularMain(
		resource.APIModel{API: generic.API, Model: lcdielectrics.Controller},
		resource.APIModel{API: sensor.API, Model: lcdielectrics.StatusSensor},
		resource.APIModel{API: sensor.API, Model: lcdielectrics.SimulatedHotstage},
		resource.APIModel{API: genericcomponent.API, Model: lcdielectrics.SimulatedAnalyzer},
	)
}
