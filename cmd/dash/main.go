// Command dash runs a dashboard node: it dials the cluster bus master,
// subscribes to the tables an operator wants to watch, and serves the
// HTTP/WebSocket dashboard (§6) that mirrors those tables out to
// browser clients in real time.
package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/google/uuid"

	"github.com/solostec/smf/internal/bus"
	"github.com/solostec/smf/internal/config"
	"github.com/solostec/smf/internal/store"
	"github.com/solostec/smf/internal/wsapi"
)

func main() {
	confPath := flag.String("config", "smf.conf", "path to the dashboard configuration document")
	docRoot := flag.String("docroot", "./web", "static document root served over HTTP")
	flag.Parse()

	logger := log.New(os.Stdout, "dash: ", log.LstdFlags|log.Lmicroseconds)

	doc, err := config.Load(*confPath)
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	if len(doc.Cluster) == 0 {
		logger.Fatalf("config: dashboard requires at least one cluster[] entry to dial")
	}
	master := doc.Cluster[0]

	st := store.NewStore()

	ws := wsapi.New(*docRoot, logger)
	wsapi.RegisterChannel(ws, wsapi.MonitorChannel, st.SysMsgs, func(k uint64) string { return strconv.FormatUint(k, 10) })
	wsapi.RegisterChannel(ws, "_Cluster", st.Cluster, func(k uuid.UUID) string { return k.String() })

	handler := func(rec bus.Record) {
		switch rec.Op {
		case bus.OpSysMsg:
			logger.Printf("bus: sysmsg: %+v", rec.Args)
		default:
			logger.Printf("bus: %s (%d args)", rec.Op, len(rec.Args))
		}
	}

	client, err := bus.Dial(master.Host+":"+master.Service, master.Account, master.Pwd, doc.Tag, "dashboard", "1.0", handler, logger)
	if err != nil {
		logger.Fatalf("bus dial: %v", err)
	}
	defer client.Close()

	if err := client.Subscribe("cluster", "sysmsg"); err != nil {
		logger.Fatalf("bus subscribe: %v", err)
	}

	addr := doc.Server.Address + ":" + doc.Server.Service
	logger.Printf("dashboard listening on %s", addr)
	if err := http.ListenAndServe(addr, ws.Handler()); err != nil {
		logger.Fatalf("http: %v", err)
	}
}
