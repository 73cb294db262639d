// Command corrmonitor subscribes to an autocorrd status port and prints every
// message. Handy for watching a measurement without a GUI attached.
package main

import (
	"flag"
	"fmt"
	"log"
	"strings"

	zmq "github.com/pebbe/zmq4"
)

func main() {
	host := flag.String("host", "localhost", "autocorrd host")
	port := flag.Int("port", 4701, "status port number")
	topics := flag.String("topics", "", "comma-separated topics to subscribe to (empty = all)")
	flag.Parse()

	sub, err := zmq.NewSocket(zmq.SUB)
	if err != nil {
		log.Fatal(err)
	}
	defer sub.Close()
	if err = sub.Connect(fmt.Sprintf("tcp://%s:%d", *host, *port)); err != nil {
		log.Fatal(err)
	}
	if *topics == "" {
		if err = sub.SetSubscribe(""); err != nil {
			log.Fatal(err)
		}
	} else {
		for _, topic := range strings.Split(*topics, ",") {
			if err = sub.SetSubscribe(topic); err != nil {
				log.Fatal(err)
			}
		}
	}

	fmt.Printf("Listening to tcp://%s:%d\n", *host, *port)
	for {
		parts, err := sub.RecvMessage(0)
		if err != nil {
			log.Fatal(err)
		}
		if len(parts) >= 2 {
			fmt.Printf("%-14s %s\n", parts[0], parts[1])
		} else {
			fmt.Println(parts)
		}
	}
}
