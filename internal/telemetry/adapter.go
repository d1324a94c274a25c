// Package telemetry republishes readings to navigation software. A target
// URI selects the encoder and the transport:
//
//	udp+signalk+delta://host:port         SignalK delta over UDP unicast
//	udp+broadcast+nmea0183://host:port    NMEA-0183 sentences over UDP broadcast
//	mqtt+signalk+delta://host:port/topic  SignalK delta over MQTT
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/juju/errors"

	"github.com/chaz8081/calypso-anemometer/internal/calypso"
	"github.com/chaz8081/calypso-anemometer/internal/telemetry/mqtt"
	"github.com/chaz8081/calypso-anemometer/internal/telemetry/network"
	"github.com/chaz8081/calypso-anemometer/internal/telemetry/nmea0183"
	"github.com/chaz8081/calypso-anemometer/internal/telemetry/signalk"
)

// Protocol is a supported URI scheme.
type Protocol string

const (
	UDPSignalKDelta      Protocol = "udp+signalk+delta"
	UDPBroadcastNMEA0183 Protocol = "udp+broadcast+nmea0183"
	MQTTSignalKDelta     Protocol = "mqtt+signalk+delta"
)

var protocols = []Protocol{UDPSignalKDelta, UDPBroadcastNMEA0183, MQTTSignalKDelta}

// Target is a parsed telemetry URI.
type Target struct {
	Protocol Protocol
	Host     string
	Port     int
	Topic    string // MQTT only
}

func (t Target) String() string {
	s := fmt.Sprintf("%s://%s", t.Protocol, net.JoinHostPort(t.Host, strconv.Itoa(t.Port)))
	if t.Topic != "" {
		s += "/" + t.Topic
	}
	return s
}

// Lookup parses a telemetry URI without touching the network. An unknown
// scheme yields a NotSupported error, a malformed address a NotValid error.
func Lookup(uri string) (Target, error) {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return Target{}, errors.NotValidf("telemetry URI %q", uri)
	}

	var proto Protocol
	for _, p := range protocols {
		if Protocol(scheme) == p {
			proto = p
			break
		}
	}
	if proto == "" {
		return Target{}, errors.NotSupportedf("telemetry protocol for URI %q", uri)
	}

	u, err := url.Parse("//" + rest)
	if err != nil {
		return Target{}, errors.NewNotValid(err, fmt.Sprintf("telemetry URI %q", uri))
	}
	host, portStr := u.Hostname(), u.Port()
	if host == "" || portStr == "" {
		return Target{}, errors.NotValidf("telemetry URI %q without host:port", uri)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return Target{}, errors.NotValidf("telemetry port %q", portStr)
	}

	t := Target{Protocol: proto, Host: host, Port: port}
	topic := strings.Trim(u.Path, "/")
	if proto == MQTTSignalKDelta {
		t.Topic = topic
		if t.Topic == "" {
			t.Topic = mqtt.DefaultTopic
		}
	} else if topic != "" {
		return Target{}, errors.NotValidf("path %q in telemetry URI %q", u.Path, uri)
	}
	return t, nil
}

// Options tunes the encoders.
type Options struct {
	// Talker is the NMEA-0183 talker id. Empty selects "II".
	Talker string
	// BatteryName and BatteryLocation label the SignalK battery entry.
	BatteryName     string
	BatteryLocation string
}

// DefaultOptions returns the encoder defaults.
func DefaultOptions() Options {
	return Options{
		Talker:          nmea0183.DefaultTalker,
		BatteryName:     "Calypso UP10",
		BatteryLocation: "Mast",
	}
}

// encoder turns a reading into one payload.
type encoder interface {
	SetReading(calypso.Reading)
	Render() ([]byte, error)
}

// sink delivers one payload.
type sink interface {
	Send(payload []byte) error
	Close() error
}

// Adapter encodes readings and hands them to a sink.
type Adapter struct {
	target Target
	opts   Options
	newEnc func() encoder
	sink   sink
}

// New parses uri and opens its transport. Lookup errors happen before any
// socket is created.
func New(ctx context.Context, uri string, opts Options) (*Adapter, error) {
	target, err := Lookup(uri)
	if err != nil {
		return nil, err
	}
	if opts.BatteryName == "" {
		opts.BatteryName = DefaultOptions().BatteryName
	}
	if opts.BatteryLocation == "" {
		opts.BatteryLocation = DefaultOptions().BatteryLocation
	}

	a := &Adapter{target: target, opts: opts}
	switch target.Protocol {
	case UDPSignalKDelta:
		a.newEnc = a.signalK
		a.sink, err = network.NewUDP(target.Host, target.Port, network.Unicast)
	case UDPBroadcastNMEA0183:
		a.newEnc = func() encoder { return nmea0183.NewEnvelope(opts.Talker) }
		a.sink, err = network.NewUDP(target.Host, target.Port, network.Broadcast)
	case MQTTSignalKDelta:
		a.newEnc = a.signalK
		a.sink, err = mqtt.NewSink(ctx, mqtt.Options{
			Broker: net.JoinHostPort(target.Host, strconv.Itoa(target.Port)),
			Topic:  target.Topic,
		})
	}
	if err != nil {
		return nil, errors.Annotatef(err, "telemetry target %s", target)
	}
	slog.Info("[TELEMETRY] target ready", "target", target.String())
	return a, nil
}

func (a *Adapter) signalK() encoder {
	return signalk.NewDelta(a.opts.BatteryName, a.opts.BatteryLocation)
}

// Target returns the parsed target.
func (a *Adapter) Target() Target { return a.target }

// Encode renders the payload for one reading without sending it.
func (a *Adapter) Encode(r calypso.Reading) ([]byte, error) {
	enc := a.newEnc()
	enc.SetReading(r)
	return enc.Render()
}

// Submit encodes and sends one reading.
func (a *Adapter) Submit(r calypso.Reading) error {
	payload, err := a.Encode(r)
	if err != nil {
		return errors.Annotate(err, "encode reading")
	}
	if err := a.sink.Send(payload); err != nil {
		return errors.Annotatef(err, "submit to %s", a.target)
	}
	return nil
}

func (a *Adapter) Close() error {
	return a.sink.Close()
}
