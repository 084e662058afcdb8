package mqtt

import (
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/openhearth/hearth-core/internal/infrastructure/config"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultSubscribeTimeout  = 5 * time.Second
	defaultDisconnectQuiesce = 250 // milliseconds
	defaultKeepAlive         = 30 * time.Second
	defaultPingTimeout       = 10 * time.Second
)

// buildClientOptions constructs paho client options from Hearth config.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	brokerURL := fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)
	opts.AddBroker(brokerURL)

	opts.SetClientID(cfg.Broker.ClientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)

	opts.SetKeepAlive(defaultKeepAlive)
	opts.SetPingTimeout(defaultPingTimeout)
	opts.SetConnectTimeout(defaultConnectTimeout)

	// Clean session: subscriptions are tracked in the Client and restored
	// on reconnect, so broker-side session state is not needed.
	opts.SetCleanSession(true)

	opts.SetOrderMatters(false)

	return opts
}

// configureLWT sets the Last Will and Testament on the options.
//
// The broker publishes the offline payload to the system status topic if
// the connection drops without a graceful disconnect, so other systems
// can detect a Core crash.
func configureLWT(opts *pahomqtt.ClientOptions, clientID string) {
	topic := Topics{}.SystemStatus()
	payload := buildLWTPayload(clientID)
	opts.SetBinaryWill(topic, payload, 1, true)
}

// buildOnlinePayload builds the JSON payload announcing Core is online.
func buildOnlinePayload(clientID string) []byte {
	return statusPayload(clientID, "online", "startup")
}

// buildOfflinePayload builds the payload for a graceful shutdown.
func buildOfflinePayload(clientID string) []byte {
	return statusPayload(clientID, "offline", "shutdown")
}

// buildLWTPayload builds the payload the broker publishes on ungraceful loss.
func buildLWTPayload(clientID string) []byte {
	return statusPayload(clientID, "offline", "connection_lost")
}

func statusPayload(clientID, status, reason string) []byte {
	return []byte(fmt.Sprintf(
		`{"status":%q,"client_id":%q,"reason":%q,"timestamp":%q}`,
		status, clientID, reason, time.Now().UTC().Format(time.RFC3339),
	))
}
