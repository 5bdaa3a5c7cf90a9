package main

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/tve/mcp2515/canbus"
	"github.com/tve/mcp2515/mcp2515"
)

// wireFrame is the JSON shape published to <prefix>/rx and expected on
// <prefix>/tx.
type wireFrame struct {
	ID       uint32 `json:"id"`
	Extended bool   `json:"extended"`
	Remote   bool   `json:"remote"`
	DLC      uint8  `json:"dlc"`
	Data     []byte `json:"data"`
}

func toWire(f canbus.Frame) wireFrame {
	return wireFrame{
		ID:       f.ArbitrationID(),
		Extended: f.IsExtended(),
		Remote:   f.IsRemote(),
		DLC:      f.DLC,
		Data:     append([]byte(nil), f.Data[:f.DLC]...),
	}
}

func (w wireFrame) toFrame() canbus.Frame {
	f := canbus.Frame{ID: w.ID, DLC: w.DLC}
	if w.Extended {
		f.ID |= canbus.EFF
	}
	if w.Remote {
		f.ID |= canbus.RTR
	}
	copy(f.Data[:], w.Data)
	return f
}

// mqttBridge implements canbus.Device, publishing received frames to MQTT
// and tracking whether the controller's transmit queue is stopped; the
// <prefix>/tx handler in connectMQTT hands frames straight to
// Controller.Transmit, or drops them while the queue is stopped.
type mqttBridge struct {
	prefix string
	conn   mqtt.Client

	mu       sync.Mutex
	queueUp  bool
	state    canbus.State
	counters canbus.Counters
	echo     map[int]int
}

func newMQTTBridge(prefix string) *mqttBridge {
	return &mqttBridge{prefix: prefix, echo: make(map[int]int), queueUp: true}
}

func (b *mqttBridge) queueReady() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queueUp
}

func (b *mqttBridge) Receive(f canbus.Frame) {
	payload, err := json.Marshal(toWire(f))
	if err != nil {
		return
	}
	if b.conn != nil {
		b.conn.Publish(b.prefix+"/rx", 0, false, payload)
	}
}

func (b *mqttBridge) PutEcho(f canbus.Frame, idx int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.echo[idx] = int(f.DLC)
}

func (b *mqttBridge) GetEcho(idx int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.echo[idx]
	delete(b.echo, idx)
	return n
}

func (b *mqttBridge) StopQueue() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queueUp = false
}

func (b *mqttBridge) WakeQueue() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queueUp = true
}

func (b *mqttBridge) SetState(s canbus.State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = s
}

func (b *mqttBridge) Counters() *canbus.Counters { return &b.counters }

// connectMQTT dials the broker and wires <prefix>/tx to ctl.Transmit.
func connectMQTT(b *mqttBridge, conf MqttConfig, ctl *mcp2515.Controller, log mcp2515.LogPrintf) error {
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", conf.Host, conf.Port))
	opts.ClientID = "mcp2515-bridge-" + b.prefix
	opts.Username = conf.User
	opts.Password = conf.Password
	opts.SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); !token.WaitTimeout(10*time.Second) || token.Error() != nil {
		if token.Error() != nil {
			return token.Error()
		}
		return fmt.Errorf("timed out connecting to MQTT broker")
	}
	b.conn = client

	handler := func(_ mqtt.Client, m mqtt.Message) {
		var w wireFrame
		if err := json.Unmarshal(m.Payload(), &w); err != nil {
			log("mcp2515-bridge: bad tx payload on %s: %s", m.Topic(), err)
			return
		}
		if !b.queueReady() {
			log("mcp2515-bridge: dropping tx frame, a transmit is already pending")
			return
		}
		ctl.Transmit(w.toFrame())
	}
	topic := b.prefix + "/tx"
	if token := client.Subscribe(topic, 0, handler); !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		if token.Error() != nil {
			return token.Error()
		}
		return fmt.Errorf("timed out subscribing to %s", topic)
	}
	return nil
}
