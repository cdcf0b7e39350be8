package main

import (
	"flag"
	"log"
	"reflect"
	"strings"

	"github.com/robotalks/rxlink.go/pkg/env"
	"github.com/robotalks/rxlink.go/pkg/msgs"
	"github.com/robotalks/rxlink.go/pkg/radio"
)

var showRC bool

func init() {
	env.SetupFlags()
	flag.BoolVar(&showRC, "rc", showRC, "Also print RC frames.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	q, err := radio.NewQueueFromURL(env.Default().MQTTBrokerURL)
	if err != nil {
		log.Fatalln(err)
	}

	q.Sub("+/+", radio.Handler(func(topic string, payload []byte) {
		name := topic[strings.LastIndex(topic, "/")+1:]
		if name == msgs.TopicRC && !showRC {
			return
		}
		msg, err := msgs.Decode(name, payload)
		if err != nil {
			log.Printf("%s: bad message: %v", topic, err)
			return
		}
		log.Printf("%s: [%s] %s", topic,
			reflect.Indirect(reflect.ValueOf(msg)).Type().Name(),
			msg.String())
	}))
	if err := q.Connect(); err != nil {
		log.Fatalln(err)
	}
	<-(chan struct{})(nil)
}
