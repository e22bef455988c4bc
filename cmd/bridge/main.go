// Package main: bridge service.
//
// The bridge connects the game contract on the ledger with browser clients over websockets. The backend signing key
// is taken from the configuration, or derived from the configured HD seed when no key is given.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tarancss/hd"

	"github.com/marketgame/bridge/bridge"
	"github.com/marketgame/bridge/lib/config"
	"github.com/marketgame/bridge/lib/ledger/ethereum"
	"github.com/marketgame/bridge/lib/msg"
	"github.com/marketgame/bridge/lib/msg/amqp"
	"github.com/marketgame/bridge/lib/store"
	"github.com/marketgame/bridge/lib/store/db"
)

func main() {
	// get command line flags
	confPath := flag.String("c", "", "flag to get configuration from json file")
	monitor := flag.Bool("m", false, "flag to monitor the server with Prometheus at http://localhost:9100")
	flag.Parse()

	// extract configuration
	conf, err := config.ExtractConfiguration(*confPath)
	if err != nil {
		panic(err)
	}

	log.Printf("Configuration:%+v", conf)

	if !common.IsHexAddress(conf.Contract) {
		panic("invalid or missing game contract address")
	}

	// connect to database
	var dbConn store.DB

	if conf.DBConn != "" {
		if dbConn, err = db.New(conf.DBType, conf.DBConn); err != nil {
			panic(err)
		}

		log.Printf("Connecting to database:%+v\n", conf.DBConn)
	}

	// load Prometheus monitor
	if *monitor {
		go func() {
			log.Println("Serving metrics API")

			h := http.NewServeMux()

			h.Handle("/metrics", promhttp.Handler())
			http.ListenAndServe(":9100", h)
		}()
	}

	// load message broker
	var mb msg.MsgBroker

	switch conf.MbType {
	case "amqp":
		if mb, err = amqp.New(conf.MbConn); err != nil {
			time.Sleep(10 * time.Second) // wait 10s for AMQP to be ready and try to reconnect

			if mb, err = amqp.New(conf.MbConn); err != nil {
				panic(err)
			}
		}

		if err = mb.Setup(); err != nil {
			panic(err)
		}
	default:
		log.Printf("Unknown message broker type: %s\n", conf.MbType)
	}

	// resolve the backend signing key: configured key wins, otherwise derive the wallet's first external address
	// from the HD seed
	privKey := conf.PrivKey
	if privKey == "" {
		seed, errSeed := hex.DecodeString(conf.Seed)
		if errSeed != nil {
			panic(errSeed)
		}

		hdw, errInit := hd.Init(seed)
		if errInit != nil {
			panic(errInit)
		}

		addr, key, _, errAddr := hdw.Address(0, hd.External, 0)
		if errAddr != nil {
			panic(errAddr)
		}

		privKey = hex.EncodeToString(key)
		log.Printf("Backend key derived from HD seed, address 0x%s", hex.EncodeToString(addr))
	}

	// connect to the ledger node
	gw, err := ethereum.Dial(context.Background(), conf.Node, privKey)
	if err != nil {
		panic(err)
	}

	log.Printf("Connected to ledger node %s", conf.Node)

	// create bridge service
	b := bridge.New(conf.DBType, dbConn, mb, gw, common.HexToAddress(conf.Contract), conf.GameBlocks)

	// capture CTRL+C or docker's SIGTERM for gracious exit
	finish := make(chan int)

	go func() {
		sigchan := make(chan os.Signal, 10)
		signal.Notify(sigchan, os.Interrupt, syscall.SIGTERM)
		<-sigchan
		log.Println("Program killed !")
		// do last actions and wait for all write operations to end
		b.Stop()
		close(finish)
	}()

	// seed state and start the event pipeline
	if err := b.Run(context.Background()); err != nil {
		panic(err)
	}

	// init websocket API, wait for its return and log response
	log.Printf("Bridge: %s\n", b.Init(conf.Endpoint, conf.Port))

	<-finish
}
