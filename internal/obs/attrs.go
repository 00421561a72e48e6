package obs

import "go.opentelemetry.io/otel/attribute"

var (
	keyKind  = attribute.Key("rclgo.kind")
	keyTopic = attribute.Key("rclgo.topic")
)

func attrKind(kind string) attribute.KeyValue   { return keyKind.String(kind) }
func attrTopic(topic string) attribute.KeyValue { return keyTopic.String(topic) }
