package main

import (
	service "github.com/nayotta/metathings-sensor-fall-detector/pkg/fall_detector/service"
	component "github.com/nayotta/metathings/pkg/component"
)

func main() {
	mdl, err := component.NewModule("fall-detector", new(service.FallDetectorService))
	if err != nil {
		panic(err)
	}

	err = mdl.Launch()
	if err != nil {
		panic(err)
	}
}
