// file: meshd/pkt/factory.go
package pkt

// Register builds a register envelope announcing a new instance.
func Register(service, version, host string, port int, nodeID string, kind Kind, vendors []Vendor) *Envelope {
	return &Envelope{
		Pid:  newPid(),
		Type: TypeRegister,
		Params: map[string]any{
			"service": service,
			"version": version,
			"host":    host,
			"port":    port,
			"node_id": nodeID,
			"type":    kind,
			"vendors": vendors,
		},
	}
}

// Activated builds the registered/activated envelope pushed to an instance
// once every one of its dependencies has at least one address.
func Activated(vendors []ActivatedVendor) *Envelope {
	return &Envelope{
		Pid:  newPid(),
		Type: TypeRegistered,
		Params: map[string]any{
			"vendors": vendors,
		},
	}
}

// Deregister builds a deregister envelope, sent to every instance of every
// consumer of a service when one of that service's instances disappears.
func Deregister(nodeID, service, version string) *Envelope {
	return &Envelope{
		Pid:  newPid(),
		Type: TypeDeregister,
		Params: map[string]any{
			"node_id": nodeID,
			"service": service,
			"version": version,
		},
	}
}

// GetInstances builds a request for the current instance set of a service.
func GetInstances(service, version string) *Envelope {
	return &Envelope{
		Pid:  newPid(),
		Type: TypeGetInstances,
		Params: map[string]any{
			"service": service,
			"version": version,
		},
	}
}

// SendInstances builds the reply to get_instances.
func SendInstances(service, version string, instances []Address) *Envelope {
	return &Envelope{
		Pid:  newPid(),
		Type: TypeInstances,
		Params: map[string]any{
			"service":   service,
			"version":   version,
			"instances": instances,
		},
	}
}

// XSubscribe builds an xsubscribe envelope declaring the subscriptions a
// new instance wants serviced.
func XSubscribe(host string, port int, nodeID string, events []SubscribeEvent) *Envelope {
	return &Envelope{
		Pid:  newPid(),
		Type: TypeXSubscribe,
		Params: map[string]any{
			"host":    host,
			"port":    port,
			"node_id": nodeID,
			"events":  events,
		},
	}
}

// GetSubscribers builds a request for the subscriber set of one endpoint.
func GetSubscribers(service, version, endpoint string) *Envelope {
	return &Envelope{
		Pid:       newPid(),
		Type:      TypeGetSubscribers,
		RequestID: newPid(),
		Params: map[string]any{
			"service":  service,
			"version":  version,
			"endpoint": endpoint,
		},
	}
}

// Subscribers builds the reply to get_subscribers, correlated by requestID.
func Subscribers(requestID, service, version, endpoint string, subs []Subscriber) *Envelope {
	return &Envelope{
		Pid:       newPid(),
		Type:      TypeSubscribers,
		RequestID: requestID,
		Params: map[string]any{
			"service":     service,
			"version":     version,
			"endpoint":    endpoint,
			"subscribers": subs,
		},
	}
}

// Ping builds a liveness probe.
func Ping(nodeID string) *Envelope {
	return &Envelope{
		Pid:    newPid(),
		Type:   TypePing,
		NodeID: nodeID,
	}
}

// Pong builds a liveness reply, count is the pinger's round-trip counter
// echoed back unmodified.
func Pong(nodeID string, count int64) *Envelope {
	return &Envelope{
		Pid:    newPid(),
		Type:   TypePong,
		NodeID: nodeID,
		Count:  count,
	}
}

// Ack builds an acknowledgement of a directed publish, requestID is the
// publish_id being acknowledged.
func Ack(requestID string) *Envelope {
	return &Envelope{
		Pid:       newPid(),
		Type:      TypeAck,
		RequestID: requestID,
	}
}

// Request builds a request/response envelope addressed to one endpoint of
// one locally-hosted service dependency.
func Request(app, service, version, entity, endpoint string, payload any) *Envelope {
	return &Envelope{
		Pid:      newPid(),
		Type:     TypeRequest,
		App:      app,
		Service:  service,
		Version:  version,
		Entity:   entity,
		Endpoint: endpoint,
		Payload:  payload,
	}
}

// Publish builds a directed-xpublish payload envelope, correlated by
// publishID. (Broker fan-out sends the JSON payload itself, not an
// envelope.)
func Publish(service, version, endpoint string, payload any, publishID string) *Envelope {
	return &Envelope{
		Pid:       newPid(),
		Type:      TypePublish,
		Service:   service,
		Version:   version,
		Endpoint:  endpoint,
		Payload:   payload,
		PublishID: publishID,
	}
}
