package main

import (
	"flag"
	"log"
	"os"
	"time"

	"github.com/robotalks/sensorgw/pkg/monitor"
	"github.com/robotalks/sensorgw/pkg/mqtt"
)

var (
	mqttURL = "mqtt://localhost:1883/sensorgw/"
	filter  = "#"
)

func init() {
	if val := os.Getenv("SENSORGW_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
	flag.StringVar(&filter, "topic", filter, "Topic filter under the prefix.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	q, err := mqtt.NewQueueFromURL(mqttURL, "")
	if err != nil {
		log.Fatalln(err)
	}
	if err = q.Connect(5 * time.Second); err != nil {
		log.Fatalln(err)
	}
	q.Sub(filter, func(topic string, payload []byte) {
		log.Println(monitor.Format(topic, payload))
	})
	<-(chan struct{})(nil)
}
