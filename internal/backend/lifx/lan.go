package lifx

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"time"
)

// LIFX LAN protocol message types.
const (
	msgGetService   = 2
	msgStateService = 3
	msgGetColor     = 101
	msgSetColor     = 102
	msgLightState   = 107
	msgSetPower     = 117
	msgStatePower   = 118
)

const (
	headerSize     = 36
	defaultUDPPort = 56700

	// requestTimeout bounds a single unicast request/reply exchange when
	// the caller's context carries no deadline of its own.
	requestTimeout = 3 * time.Second

	// defaultScanWindow is the StateService reply collection window when
	// the scanner is created with a zero value.
	defaultScanWindow = 3 * time.Second
)

// Scanner discovers LIFX bulbs with a GetService broadcast.
type Scanner struct {
	broadcastAddr string
	port          int
	scanWindow    time.Duration
	source        uint32
}

// NewScanner creates a LAN scanner targeting the given broadcast address
// and port. scanWindow is the broadcast reply collection window. Zero
// values fall back to 255.255.255.255:56700 and the default window.
func NewScanner(broadcastAddr string, port int, scanWindow time.Duration) *Scanner {
	if broadcastAddr == "" {
		broadcastAddr = "255.255.255.255"
	}
	if port == 0 {
		port = defaultUDPPort
	}
	if scanWindow <= 0 {
		scanWindow = defaultScanWindow
	}
	return &Scanner{
		broadcastAddr: broadcastAddr,
		port:          port,
		scanWindow:    scanWindow,
		source:        rand.Uint32() | 1, // non-zero source per protocol
	}
}

// Scan broadcasts GetService and collects every StateService reply until
// ctx expires. Duplicate replies from the same bulb are collapsed.
func (s *Scanner) Scan(ctx context.Context) ([]Bulb, error) {
	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return nil, fmt.Errorf("opening lifx socket: %w", err)
	}
	defer conn.Close()

	target := &net.UDPAddr{IP: net.ParseIP(s.broadcastAddr), Port: s.port}
	if target.IP == nil {
		return nil, fmt.Errorf("invalid broadcast address %q", s.broadcastAddr)
	}

	pkt := encodeHeader(msgGetService, s.source, [6]byte{}, true, nil)
	if _, err := conn.WriteTo(pkt, target); err != nil {
		return nil, fmt.Errorf("sending GetService: %w", err)
	}

	deadline := time.Now().Add(s.scanWindow)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)

	seen := map[string]Bulb{}
	buf := make([]byte, 1024)
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			break // deadline reached
		}
		mac, msgType, payload, err := decodeHeader(buf[:n])
		if err != nil || msgType != msgStateService || len(payload) < 5 {
			continue
		}
		port := binary.LittleEndian.Uint32(payload[1:5])
		host, _, err := net.SplitHostPort(from.String())
		if err != nil {
			continue
		}
		macHex := hex.EncodeToString(mac[:])
		if macHex == "000000000000" {
			continue
		}
		if _, dup := seen[macHex]; !dup {
			seen[macHex] = &udpBulb{
				mac:    mac,
				macHex: macHex,
				addr:   fmt.Sprintf("%s:%d", host, port),
				source: s.source,
			}
		}
		if ctx.Err() != nil {
			break
		}
	}

	bulbs := make([]Bulb, 0, len(seen))
	for _, b := range seen {
		bulbs = append(bulbs, b)
	}
	return bulbs, nil
}

// udpBulb issues unicast requests to one bulb. Each exchange opens a
// short-lived socket; bulbs are stateless and the rate is low.
type udpBulb struct {
	mac    [6]byte
	macHex string
	addr   string
	source uint32
}

func (b *udpBulb) MAC() string  { return b.macHex }
func (b *udpBulb) Addr() string { return b.addr }

func (b *udpBulb) GetState(ctx context.Context) (State, error) {
	payload, err := b.roundTrip(ctx, msgGetColor, nil, msgLightState)
	if err != nil {
		return State{}, err
	}
	if len(payload) < 52 {
		return State{}, fmt.Errorf("short LightState payload: %d bytes", len(payload))
	}

	st := State{
		Color: HSBK{
			Hue:        binary.LittleEndian.Uint16(payload[0:2]),
			Saturation: binary.LittleEndian.Uint16(payload[2:4]),
			Brightness: binary.LittleEndian.Uint16(payload[4:6]),
			Kelvin:     binary.LittleEndian.Uint16(payload[6:8]),
		},
		Power: binary.LittleEndian.Uint16(payload[10:12]) > 0,
		Label: strings.TrimRight(string(payload[12:44]), "\x00"),
	}
	return st, nil
}

func (b *udpBulb) SetPower(ctx context.Context, on bool) error {
	var level uint16
	if on {
		level = 0xFFFF
	}
	payload := make([]byte, 6)
	binary.LittleEndian.PutUint16(payload[0:2], level)
	// duration (ms) left at 0 for an immediate transition

	_, err := b.roundTrip(ctx, msgSetPower, payload, msgStatePower)
	return err
}

func (b *udpBulb) SetColor(ctx context.Context, color HSBK) error {
	payload := make([]byte, 13)
	// payload[0] reserved
	binary.LittleEndian.PutUint16(payload[1:3], color.Hue)
	binary.LittleEndian.PutUint16(payload[3:5], color.Saturation)
	binary.LittleEndian.PutUint16(payload[5:7], color.Brightness)
	kelvin := color.Kelvin
	if kelvin == 0 {
		kelvin = 3500
	}
	binary.LittleEndian.PutUint16(payload[7:9], kelvin)
	// duration (ms) left at 0

	_, err := b.roundTrip(ctx, msgSetColor, payload, msgLightState)
	return err
}

// roundTrip sends one unicast request and waits for a reply of wantType
// from this bulb, discarding unrelated traffic.
func (b *udpBulb) roundTrip(ctx context.Context, msgType uint16, payload []byte, wantType uint16) ([]byte, error) {
	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return nil, fmt.Errorf("opening lifx socket: %w", err)
	}
	defer conn.Close()

	target, err := net.ResolveUDPAddr("udp4", b.addr)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", b.addr, err)
	}

	pkt := encodeHeader(msgType, b.source, b.mac, false, payload)
	if _, err := conn.WriteTo(pkt, target); err != nil {
		return nil, fmt.Errorf("sending to %s: %w", b.addr, err)
	}

	deadline := time.Now().Add(requestTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)

	buf := make([]byte, 1024)
	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			return nil, fmt.Errorf("awaiting reply from %s: %w", b.addr, err)
		}
		mac, gotType, reply, err := decodeHeader(buf[:n])
		if err != nil || gotType != wantType || mac != b.mac {
			continue
		}
		out := make([]byte, len(reply))
		copy(out, reply)
		return out, nil
	}
}

// encodeHeader builds a LIFX LAN packet: 36-byte header plus payload.
func encodeHeader(msgType uint16, source uint32, target [6]byte, tagged bool, payload []byte) []byte {
	pkt := make([]byte, headerSize+len(payload))

	binary.LittleEndian.PutUint16(pkt[0:2], uint16(len(pkt)))

	// protocol 1024, addressable bit, tagged bit for broadcast
	flags := uint16(1024) | 1<<12
	if tagged {
		flags |= 1 << 13
	}
	binary.LittleEndian.PutUint16(pkt[2:4], flags)
	binary.LittleEndian.PutUint32(pkt[4:8], source)

	copy(pkt[8:14], target[:])

	// pkt[22] flags: res_required so every request yields a reply
	pkt[22] = 1
	// pkt[23] sequence left at 0; source disambiguates replies

	binary.LittleEndian.PutUint16(pkt[32:34], msgType)

	copy(pkt[headerSize:], payload)
	return pkt
}

// decodeHeader splits a packet into sender mac, message type and payload.
func decodeHeader(pkt []byte) (mac [6]byte, msgType uint16, payload []byte, err error) {
	if len(pkt) < headerSize {
		return mac, 0, nil, fmt.Errorf("packet too short: %d bytes", len(pkt))
	}
	size := binary.LittleEndian.Uint16(pkt[0:2])
	if int(size) > len(pkt) {
		return mac, 0, nil, fmt.Errorf("truncated packet: header says %d, got %d", size, len(pkt))
	}
	copy(mac[:], pkt[8:14])
	msgType = binary.LittleEndian.Uint16(pkt[32:34])
	return mac, msgType, pkt[headerSize:size], nil
}

var _ LAN = (*Scanner)(nil)
var _ Bulb = (*udpBulb)(nil)
