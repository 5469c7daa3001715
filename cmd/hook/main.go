// Command hook is a demo webhook receiver: it listens for the signed POSTs
// the agent sends on credential issuance and revocation, and prints each
// one to stdout. It is not part of the agent itself — operators run it to
// see what their own webhook endpoint will receive.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
)

type body struct {
	Action string         `json:"action"`
	Actor  string         `json:"actor"`
	Data   map[string]any `json:"data"`
}

func main() {
	port := flag.String("port", "9923", "port to listen on")
	debug := flag.Bool("debug", false, "print full request headers and body")
	flag.Parse()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /", func(w http.ResponseWriter, r *http.Request) {
		var b body
		if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
			http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
			return
		}

		switch b.Action {
		case "iss":
			fmt.Printf("gatekeeper | valid credential %v from %s\n", b.Data["credential"], b.Actor)
		case "rev":
			fmt.Printf("gatekeeper | invalid credential %v (schema %v) revoked at %v\n",
				b.Data["credential"], b.Data["schema"], b.Data["revocationTimestamp"])
		default:
			fmt.Printf("gatekeeper | unknown action %q\n", b.Action)
		}

		if *debug {
			debugRequest(r, b)
		}

		w.WriteHeader(http.StatusOK)
	})

	addr := ":" + *port
	log.Printf("sally hook demo listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("listen: %v", err)
	}
}

func debugRequest(r *http.Request, b body) {
	fmt.Println("** headers **")
	for k, v := range r.Header {
		fmt.Printf("%s: %v\n", k, v)
	}
	fmt.Println("** body **")
	raw, _ := json.MarshalIndent(b, "", "  ")
	fmt.Println(string(raw))
}
