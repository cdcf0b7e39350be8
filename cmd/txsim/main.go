package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"flag"

	"github.com/golang/glog"

	"github.com/robotalks/rxlink.go/pkg/cli/sh"
	"github.com/robotalks/rxlink.go/pkg/config"
	"github.com/robotalks/rxlink.go/pkg/env"
	"github.com/robotalks/rxlink.go/pkg/radio"
)

var modelID = uint(config.AnyModel)

func init() {
	env.SetupFlags()
	flag.UintVar(&modelID, "model", modelID, "Model ID sent with frames")
}

func main() {
	flag.Parse()
	conf := env.Default()

	q, err := radio.NewQueueFromURL(conf.MQTTBrokerURL)
	if err != nil {
		glog.Fatalf("mqtt: %v", err)
	}
	if err := q.Connect(); err != nil {
		glog.Fatalf("mqtt connect %s: %v", conf.MQTTBrokerURL, err)
	}
	defer q.Close()

	tx := radio.NewTransmitter(q, conf.ReceiverID(), uint8(modelID))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tx.Run(ctx)

	sh.New(tx).Run(flag.Args()...)
}
