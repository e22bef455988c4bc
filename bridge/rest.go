package bridge

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

const readTimeout = 15

// Init sets up and starts the http server exposing the websocket endpoint. It blocks until Stop triggers the
// shutdown and then returns a closing status line.
func (b *Service) Init(endpoint, port string) string {
	var err error

	// API definition
	r := mux.NewRouter()
	r.HandleFunc("/", b.homeHandler)
	r.HandleFunc("/ws", b.wsHandler) // game client sessions
	http.Handle("/", r)

	// setup shutdown channel
	b.sc = make(chan struct{})

	if port != "" {
		b.s = &http.Server{
			Handler: r,
			Addr:    endpoint + ":" + port,
			// No WriteTimeout: websocket sessions outlive any sane value and the upgrade hijacks the
			// connection anyway.
			ReadTimeout: readTimeout * time.Second,
		}

		go func() {
			err = b.s.ListenAndServe()
		}()

		log.Printf("Listening to game clients on %s:%s", endpoint, port)
	}
	// wait for server to be shutdown
	<-b.sc

	return fmt.Sprintf("shutdown http server:%e", err)
}

// Handler returns the service's router for tests.
func (b *Service) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", b.homeHandler)
	r.HandleFunc("/ws", b.wsHandler)
	return r
}

// Response defines the data structure returned to clients of the http endpoints.
type Response struct {
	Body  string `json:"body"`
	Error string `json:"error,omitempty"`
}

// homeHandler replies a welcome message, doubling as the health endpoint: a bridge that lost its ledger streams
// answers 503 so a supervisor probing / restarts it.
func (b *Service) homeHandler(rw http.ResponseWriter, r *http.Request) {
	log.Printf("httpreq from %v %s\n", r.RemoteAddr, r.RequestURI)
	res := Response{Body: "Hello, this is your game bridge!"}
	rw.Header().Set("Content-Type", "application/json;charset=utf8")
	if err := b.Healthy(); err != nil {
		res.Error = "ledger stream lost: " + err.Error()
		rw.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(rw).Encode(res)
}
