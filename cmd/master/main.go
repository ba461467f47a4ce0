// Command master runs the cluster-bus hub: it loads a configuration
// document, opens the replicated store, and accepts node connections
// on the configured server address, the role the teacher's own
// server/main.go plays for the chat hub (accept, authenticate, serve).
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/solostec/smf/internal/auth"
	"github.com/solostec/smf/internal/bus"
	"github.com/solostec/smf/internal/config"
	"github.com/solostec/smf/internal/store"
	"github.com/solostec/smf/internal/store/sqlbridge"
)

func main() {
	confPath := flag.String("config", "smf.conf", "path to the master configuration document")
	flag.Parse()

	logger := log.New(os.Stdout, "master: ", log.LstdFlags|log.Lmicroseconds)

	doc, err := config.Load(*confPath)
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	st := store.NewStore()

	checker := auth.NewStatic(nil)
	for _, peer := range doc.Cluster {
		if peer.Account != "" {
			checker.Set(peer.Account, peer.Pwd)
		}
	}
	if doc.Server.Account != "" {
		checker.Set(doc.Server.Account, doc.Server.Pwd)
	}

	if dsn := os.Getenv("SMF_MYSQL_DSN"); dsn != "" {
		bridge, err := sqlbridge.Open("mysql", dsn)
		if err != nil {
			logger.Fatalf("sqlbridge: %v", err)
		}
		defer bridge.Close()
		if err := bridge.CreateSchema(context.Background()); err != nil {
			logger.Fatalf("sqlbridge: create schema: %v", err)
		}
		loadDevices(bridge, st, logger)
		loadConfig(bridge, st, logger)
		persistDevices(bridge, st, logger)
		persistConfig(bridge, st, logger)
	}

	m := bus.NewMaster(st, checker, 30*time.Second, logger)

	addr := net.JoinHostPort(doc.Server.Address, doc.Server.Service)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Fatalf("listen %s: %v", addr, err)
	}
	logger.Printf("cluster bus listening on %s", addr)

	for {
		nc, err := ln.Accept()
		if err != nil {
			logger.Printf("accept: %v", err)
			continue
		}
		go m.Serve(nc)
	}
}

// loadDevices prefills TDevice from the bridge at boot. A row whose
// uuid column is not a valid UUID is logged and skipped rather than
// failing startup, since a hand-edited database is more likely than a
// corrupt one.
func loadDevices(bridge *sqlbridge.Bridge, st *store.Store, logger *log.Logger) {
	devices, err := bridge.LoadDevices(context.Background())
	if err != nil {
		logger.Printf("sqlbridge: load devices: %v", err)
		return
	}
	for id, d := range devices {
		key, err := uuid.Parse(id)
		if err != nil {
			logger.Printf("sqlbridge: device row %q: %v", id, err)
			continue
		}
		st.Devices.Put(key, d, "sqlbridge")
	}
}

// loadConfig prefills _Config from the bridge at boot.
func loadConfig(bridge *sqlbridge.Bridge, st *store.Store, logger *log.Logger) {
	values, err := bridge.LoadConfig(context.Background())
	if err != nil {
		logger.Printf("sqlbridge: load config: %v", err)
		return
	}
	for name, v := range values {
		st.Config.Put(name, v, "sqlbridge")
	}
}

// persistDevices subscribes TDevice to the bridge so every insert or
// modify is written through; rows erased from the store are left in
// place rather than deleted, since TDevice never erases a row that
// should not still be reloadable on restart.
func persistDevices(bridge *sqlbridge.Bridge, st *store.Store, logger *log.Logger) {
	st.Devices.Subscribe(func(ev store.Event, key uuid.UUID, row store.Row[store.Device]) {
		if ev == store.EventErase || ev == store.EventClear {
			return
		}
		if err := bridge.SaveDevice(context.Background(), key.String(), row.Value); err != nil {
			logger.Printf("sqlbridge: %v", err)
		}
	})
}

// persistConfig subscribes _Config to the bridge the same way
// persistDevices does for TDevice.
func persistConfig(bridge *sqlbridge.Bridge, st *store.Store, logger *log.Logger) {
	st.Config.Subscribe(func(ev store.Event, name string, row store.Row[store.ConfigValue]) {
		if ev == store.EventErase || ev == store.EventClear {
			return
		}
		if err := bridge.SaveConfig(context.Background(), name, row.Value); err != nil {
			logger.Printf("sqlbridge: %v", err)
		}
	})
}
