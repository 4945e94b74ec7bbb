package supervisor

import (
	"fmt"
	"net"
	"time"

	"github.com/markusressel/fangrid/internal/configuration"
	"github.com/markusressel/fangrid/internal/protocol"
	"github.com/markusressel/fangrid/internal/util"
)

// Discovery is one reply collected by a one-shot probe scan.
type Discovery struct {
	Mac        string
	IP         string
	Bootloader bool
	Version    string
	MisoPort   int
	MosiPort   int
	Error      string
}

// Scan broadcasts a single probe and collects every reply that arrives
// within the given window. It binds the configured listener port, so it
// cannot run next to an active daemon on the same host.
func Scan(config configuration.Configuration, window time.Duration) ([]Discovery, error) {
	codec := protocol.NewCodec(config.Network.Passcode, config.DcDecimals, config.Network.MaxFrameLength)

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: config.Network.ListenerPort})
	if err != nil {
		return nil, fmt.Errorf("cannot bind listener port %d: %w", config.Network.ListenerPort, err)
	}
	defer func() {
		_ = conn.Close()
	}()
	if err = enableBroadcast(conn); err != nil {
		return nil, fmt.Errorf("cannot enable broadcast: %w", err)
	}

	destination := &net.UDPAddr{
		IP:   net.ParseIP(config.Network.BroadcastAddress.Host()),
		Port: config.Network.BroadcastPort,
	}
	if _, err = conn.WriteToUDP(codec.Probe(config.Network.ListenerPort), destination); err != nil {
		return nil, fmt.Errorf("cannot send probe: %w", err)
	}

	found := map[string]Discovery{}
	buffer := make([]byte, config.Network.MaxFrameLength)
	_ = conn.SetReadDeadline(time.Now().Add(window))
	for {
		length, source, err := conn.ReadFromUDP(buffer)
		if err != nil {
			// the read deadline closes the collection window
			break
		}
		reply, err := codec.ParseListenerReply(buffer[:length])
		if err != nil {
			continue
		}
		found[reply.Mac] = Discovery{
			Mac:        reply.Mac,
			IP:         source.IP.String(),
			Bootloader: reply.Bootloader,
			Version:    reply.Version,
			MisoPort:   reply.MisoPort,
			MosiPort:   reply.MosiPort,
			Error:      reply.Error,
		}
	}

	discoveries := make([]Discovery, 0, len(found))
	for _, mac := range util.SortedKeys(found) {
		discoveries = append(discoveries, found[mac])
	}
	return discoveries, nil
}
