// Command gateway runs one SMF gateway node: it loads its
// configuration, joins the cluster bus as a node, and runs the
// readout/push pipeline described in §4.5 against its local meter
// inventory.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"time"

	"github.com/solostec/smf/internal/bus"
	"github.com/solostec/smf/internal/config"
	"github.com/solostec/smf/internal/gateway"
	"github.com/solostec/smf/internal/ipt"
	"github.com/solostec/smf/internal/proxy"
	"github.com/solostec/smf/internal/store"
)

// deviceWatchdogMinutes is the watchdog interval advertised to field
// devices on login; the configuration document does not carry a
// device-facing watchdog field of its own, unlike the cluster bus's
// own 30s node watchdog in cmd/master.
const deviceWatchdogMinutes = 10 * time.Minute

// iptTransport adapts a lazily-dialed *ipt.PushClient per target name
// to gateway.Transport. Push ops run one at a time per gateway
// (internal/gateway never overlaps OpenChannel/TransferPushdata/
// CloseChannel for the same op), so the client used to open the last
// channel is the one transfer/close address next.
type iptTransport struct {
	clients map[string]*ipt.PushClient
	addrs   map[string]string
	current *ipt.PushClient
}

func newIPTTransport(peers []config.IPTPeer) *iptTransport {
	addrs := make(map[string]string, len(peers))
	for _, p := range peers {
		addrs[p.Account] = p.Host + ":" + p.Service
	}
	return &iptTransport{clients: make(map[string]*ipt.PushClient), addrs: addrs}
}

func (t *iptTransport) clientFor(ctx context.Context, target string) (*ipt.PushClient, error) {
	if c, ok := t.clients[target]; ok {
		return c, nil
	}
	addr, ok := t.addrs[target]
	if !ok {
		addr = target
	}
	c, err := ipt.DialPushClient(ctx, addr)
	if err != nil {
		return nil, err
	}
	t.clients[target] = c
	return c, nil
}

func (t *iptTransport) OpenChannel(ctx context.Context, target, deviceID string) (uint32, uint32, error) {
	c, err := t.clientFor(ctx, target)
	if err != nil {
		return 0, 0, err
	}
	ch, src, err := c.OpenChannel(ctx, target, deviceID)
	if err != nil {
		delete(t.clients, target)
		return 0, 0, err
	}
	t.current = c
	return ch, src, nil
}

func (t *iptTransport) TransferPushdata(ctx context.Context, channel, source uint32, data []byte) error {
	if t.current == nil {
		return nil
	}
	return t.current.TransferPushdata(ctx, channel, source, data)
}

func (t *iptTransport) CloseChannel(ctx context.Context, channel uint32) error {
	if t.current == nil {
		return nil
	}
	return t.current.CloseChannel(ctx, channel)
}

func main() {
	confPath := flag.String("config", "smf.conf", "path to the gateway configuration document")
	flag.Parse()

	logger := log.New(os.Stdout, "gateway: ", log.LstdFlags|log.Lmicroseconds)

	doc, err := config.Load(*confPath)
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	st := store.NewStore()
	buckets := gateway.NewBuckets()
	transport := newIPTTransport(doc.IPT)

	serverID := doc.Hardware.Manufacturer + "-" + doc.Hardware.Serial
	if doc.VirtualMeter.Enabled && doc.VirtualMeter.ServerID != "" {
		serverID = doc.VirtualMeter.ServerID
	}

	gw, err := gateway.New(serverID, st, buckets, transport, logger)
	if err != nil {
		logger.Fatalf("gateway: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	readoutInterval := time.Duration(doc.MBus.ReadoutIntervalSeconds) * time.Second
	if readoutInterval <= 0 {
		readoutInterval = time.Minute
	}
	if err := gw.Start(ctx, readoutInterval); err != nil {
		logger.Fatalf("gateway start: %v", err)
	}
	defer gw.Stop()

	searchInterval := time.Duration(doc.MBus.SearchIntervalSeconds) * time.Second
	if err := gw.StartDiscovery(gateway.NoopScanner{}, searchInterval, doc.MBus.AutoActivate); err != nil {
		logger.Fatalf("gateway discovery: %v", err)
	}

	if doc.WirelessLMN.Port != "" || doc.WiredLMN.Port != "" {
		devAddr := net.JoinHostPort(doc.Server.Address, doc.Server.Service)
		devLn, err := net.Listen("tcp", devAddr)
		if err != nil {
			logger.Fatalf("listen %s: %v", devAddr, err)
		}
		logger.Printf("device-facing IP-T listener on %s", devAddr)

		iptServer := &proxy.Server{
			Checker:  gateway.DeviceChecker{Store: st},
			Watchdog: deviceWatchdogMinutes,
			Logger:   logger,
			Sink:     &gateway.Ingest{ServerID: serverID, Store: st},
		}
		go func() {
			for {
				nc, err := devLn.Accept()
				if err != nil {
					logger.Printf("device accept: %v", err)
					return
				}
				go iptServer.Serve(nc)
			}
		}()
	}

	if len(doc.Cluster) > 0 {
		master := doc.Cluster[0]
		handler := func(rec bus.Record) {
			logger.Printf("bus: %s (%d args)", rec.Op, len(rec.Args))
		}
		client, err := bus.Dial(master.Host+":"+master.Service, master.Account, master.Pwd, doc.Tag, "gateway", "1.0", handler, logger)
		if err != nil {
			logger.Printf("bus dial: %v (continuing without cluster membership)", err)
		} else {
			defer client.Close()
		}
	}

	logger.Printf("gateway %s running", serverID)
	select {}
}
