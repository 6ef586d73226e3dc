// Package mqtt provides MQTT client connectivity for Homeview Core.
//
// This package manages:
//   - Connection to Mosquitto broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// Homeview uses MQTT as the transport between smart-home devices and the
// dashboard. Devices publish state to arbitrary user-defined topics; the
// reconciliation engine subscribes to a catch-all pattern plus each
// registered device topic and publishes control payloads back.
//
//	Devices ↔ MQTT Broker ↔ Homeview Core ↔ Browser dashboard
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Performance Characteristics
//
//   - Connection: <1 second to local broker
//   - Publish latency: <10ms for QoS 1 to local broker
//   - Reconnect: Exponential backoff 1s-60s with jitter
//   - Message throughput: Broker-limited (typically 10K+ msg/sec)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Observe all device traffic
//	err = client.Subscribe(mqtt.Topics{}.AllTopics(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish a control payload
//	client.Publish("home/living/relay1", []byte(`{"state":"ON"}`), 1, false)
package mqtt
