package wemo

import (
	"bufio"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	ssdpAddr     = "239.255.255.250:1900"
	ssdpSearchST = "urn:Belkin:service:basicevent:1"

	// soapCallTimeout bounds a single SOAP round trip when the caller's
	// context carries no deadline of its own.
	soapCallTimeout = 5 * time.Second

	// defaultSearchWindow is the SSDP reply collection window when the
	// control point is created with a zero value.
	defaultSearchWindow = 3 * time.Second

	basicEventService = "urn:Belkin:service:basicevent:1"
	basicEventPath    = "/upnp/control/basicevent1"
)

// SSDPControlPoint discovers WeMo devices via SSDP multicast search and
// UPnP device descriptions.
type SSDPControlPoint struct {
	httpClient   *http.Client
	searchWindow time.Duration
}

// NewControlPoint creates an SSDP control point with its own HTTP client.
// searchWindow is the M-SEARCH reply collection window; zero falls back
// to the default.
func NewControlPoint(searchWindow time.Duration) *SSDPControlPoint {
	if searchWindow <= 0 {
		searchWindow = defaultSearchWindow
	}
	return &SSDPControlPoint{
		httpClient:   &http.Client{Timeout: soapCallTimeout},
		searchWindow: searchWindow,
	}
}

// Search broadcasts an M-SEARCH for Belkin devices and resolves every
// unique responder's device description. Malformed responders are
// skipped. The search window is bounded by ctx.
func (cp *SSDPControlPoint) Search(ctx context.Context) ([]Endpoint, error) {
	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return nil, fmt.Errorf("opening ssdp socket: %w", err)
	}
	defer conn.Close()

	target, err := net.ResolveUDPAddr("udp4", ssdpAddr)
	if err != nil {
		return nil, fmt.Errorf("resolving ssdp address: %w", err)
	}

	request := "M-SEARCH * HTTP/1.1\r\n" +
		"HOST: " + ssdpAddr + "\r\n" +
		"MAN: \"ssdp:discover\"\r\n" +
		"MX: 2\r\n" +
		"ST: " + ssdpSearchST + "\r\n" +
		"\r\n"
	if _, err := conn.WriteTo([]byte(request), target); err != nil {
		return nil, fmt.Errorf("sending m-search: %w", err)
	}

	deadline := time.Now().Add(cp.searchWindow)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)

	locations := map[string]struct{}{}
	buf := make([]byte, 2048)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			break // deadline reached or socket closed
		}
		if loc := parseSSDPLocation(buf[:n]); loc != "" {
			locations[loc] = struct{}{}
		}
		if ctx.Err() != nil {
			break
		}
	}

	endpoints := make([]Endpoint, 0, len(locations))
	for loc := range locations {
		ep, err := cp.describe(ctx, loc)
		if err != nil {
			continue
		}
		endpoints = append(endpoints, ep)
	}
	return endpoints, nil
}

// parseSSDPLocation extracts the LOCATION header from an SSDP response.
func parseSSDPLocation(raw []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	for scanner.Scan() {
		line := scanner.Text()
		if k, v, ok := strings.Cut(line, ":"); ok {
			if strings.EqualFold(strings.TrimSpace(k), "location") {
				return strings.TrimSpace(v)
			}
		}
	}
	return ""
}

// deviceDescription mirrors the parts of the UPnP setup.xml we use.
type deviceDescription struct {
	Device struct {
		DeviceType   string `xml:"deviceType"`
		FriendlyName string `xml:"friendlyName"`
		ModelName    string `xml:"modelName"`
		SerialNumber string `xml:"serialNumber"`
		UDN          string `xml:"UDN"`
	} `xml:"device"`
}

// describe fetches and parses a device description document.
func (cp *SSDPControlPoint) describe(ctx context.Context, location string) (*soapEndpoint, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, err
	}
	resp, err := cp.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("description fetch returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return nil, err
	}

	var desc deviceDescription
	if err := xml.Unmarshal(body, &desc); err != nil {
		return nil, fmt.Errorf("parsing device description: %w", err)
	}

	u, err := url.Parse(location)
	if err != nil {
		return nil, err
	}

	return &soapEndpoint{
		httpClient:   cp.httpClient,
		host:         u.Host,
		controlURL:   (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: basicEventPath}).String(),
		udn:          desc.Device.UDN,
		friendlyName: desc.Device.FriendlyName,
		modelName:    desc.Device.ModelName,
		serialNumber: desc.Device.SerialNumber,
		dimmable:     strings.Contains(desc.Device.DeviceType, "dimmer"),
	}, nil
}

// soapEndpoint talks to one WeMo device over the basicevent SOAP service.
type soapEndpoint struct {
	httpClient   *http.Client
	host         string
	controlURL   string
	udn          string
	friendlyName string
	modelName    string
	serialNumber string
	dimmable     bool
}

func (e *soapEndpoint) UDN() string          { return e.udn }
func (e *soapEndpoint) FriendlyName() string { return e.friendlyName }
func (e *soapEndpoint) ModelName() string    { return e.modelName }
func (e *soapEndpoint) SerialNumber() string { return e.serialNumber }
func (e *soapEndpoint) Host() string         { return e.host }
func (e *soapEndpoint) Dimmable() bool       { return e.dimmable }

func (e *soapEndpoint) GetBinaryState(ctx context.Context) (bool, error) {
	out, err := e.call(ctx, "GetBinaryState", nil)
	if err != nil {
		return false, err
	}
	// The dimmer reports intermediate levels as the raw level value;
	// anything non-zero counts as on.
	v, err := strconv.Atoi(strings.TrimSpace(extractTag(out, "BinaryState")))
	if err != nil {
		return false, fmt.Errorf("parsing BinaryState: %w", err)
	}
	return v != 0, nil
}

func (e *soapEndpoint) SetBinaryState(ctx context.Context, on bool) error {
	state := "0"
	if on {
		state = "1"
	}
	_, err := e.call(ctx, "SetBinaryState", map[string]string{"BinaryState": state})
	return err
}

func (e *soapEndpoint) GetBrightness(ctx context.Context) (int, error) {
	out, err := e.call(ctx, "GetBinaryState", nil)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(strings.TrimSpace(extractTag(out, "brightness")))
	if err != nil {
		return 0, fmt.Errorf("parsing brightness: %w", err)
	}
	return v, nil
}

func (e *soapEndpoint) SetBrightness(ctx context.Context, level int) error {
	_, err := e.call(ctx, "SetBinaryState", map[string]string{
		"BinaryState": "1",
		"brightness":  strconv.Itoa(level),
	})
	return err
}

// call issues one SOAP action against the basicevent service.
func (e *soapEndpoint) call(ctx context.Context, action string, args map[string]string) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, soapCallTimeout)
		defer cancel()
	}

	var body strings.Builder
	body.WriteString(`<?xml version="1.0" encoding="utf-8"?>`)
	body.WriteString(`<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">`)
	body.WriteString(`<s:Body>`)
	fmt.Fprintf(&body, `<u:%s xmlns:u="%s">`, action, basicEventService)
	for k, v := range args {
		fmt.Fprintf(&body, "<%s>%s</%s>", k, v, k)
	}
	fmt.Fprintf(&body, `</u:%s></s:Body></s:Envelope>`, action)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.controlURL, strings.NewReader(body.String()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
	req.Header.Set("SOAPACTION", fmt.Sprintf(`"%s#%s"`, basicEventService, action))

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("soap %s returned %d", action, resp.StatusCode)
	}
	return string(out), nil
}

// extractTag pulls the text content of the first occurrence of tag.
// WeMo SOAP responses are flat enough that this beats a full XML parse,
// which chokes on the devices' occasionally invalid entity escaping.
func extractTag(doc, tag string) string {
	open := "<" + tag + ">"
	closeTag := "</" + tag + ">"
	start := strings.Index(doc, open)
	if start < 0 {
		return ""
	}
	start += len(open)
	end := strings.Index(doc[start:], closeTag)
	if end < 0 {
		return ""
	}
	return doc[start : start+end]
}

var _ ControlPoint = (*SSDPControlPoint)(nil)
var _ Endpoint = (*soapEndpoint)(nil)
