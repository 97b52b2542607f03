package main

import (
	"flag"
	"os"

	"github.com/golang/glog"

	"github.com/robotalks/sensorgw/pkg/config"
	fx "github.com/robotalks/sensorgw/pkg/framework"
	"github.com/robotalks/sensorgw/pkg/gateway"
)

func init() {
	config.SetupFlags()
}

func main() {
	flag.Parse()
	defer glog.Flush()

	conf, err := config.NewConfig()
	if err != nil {
		glog.Exitf("config: %v", err)
	}
	if err = config.Validate(conf); err != nil {
		glog.Exitf("config: %v", err)
	}
	gw, err := gateway.Build(conf, gateway.Stdio())
	if err != nil {
		glog.Exitf("startup: %v", err)
	}
	defer gw.Close()

	runner := fx.NewRunner().HandleSignals()
	gw.Boot(runner.Context)
	runner.Go(gw.Tasks()...)
	runner.Go(gw.Extra...)
	if err = runner.Wait(); err != nil {
		glog.Errorf("gateway stopped: %v", err)
		glog.Flush()
		os.Exit(1)
	}
}
