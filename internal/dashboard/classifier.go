package dashboard

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Candidate is a device suggestion produced from unmatched traffic.
type Candidate struct {
	Name  string     `json:"name"`
	Type  DeviceType `json:"type"`
	Topic string     `json:"topic"`
	Room  string     `json:"room"`
}

// typeRule scores a topic and its latest payload against one device
// type. A rule hits when any topic substring, payload key substring, or
// payload content substring is present.
type typeRule struct {
	deviceType DeviceType
	label      string
	topic      []string
	keys       []string
	content    []string
}

// typeRules is a fixed priority list; the first hit wins. The ordering
// is part of the detection contract and must not be resorted.
var typeRules = []typeRule{
	{TypeTemperatureSensor, "Temperature Sensor", []string{"temp", "temperature"}, []string{"temp"}, []string{"humidity"}},
	{TypeDoorSensor, "Door Sensor", []string{"door", "contact"}, []string{"door"}, []string{"open", "closed"}},
	{TypeRelay, "Smart Relay", []string{"relay", "light", "switch"}, []string{"relay"}, []string{`"on"`, `"off"`}},
	{TypeMotionSensor, "Motion Sensor", []string{"motion", "pir"}, []string{"motion"}, []string{"detected"}},
	{TypeDistanceSensor, "Distance Sensor", []string{"distance", "ultrasonic", "range"}, []string{"distance"}, nil},
	{TypeSmartThermostat, "Thermostat", []string{"thermostat", "hvac", "climate"}, []string{"target"}, nil},
	{TypeSmartLock, "Smart Lock", []string{"lock", "deadbolt"}, []string{"lock"}, []string{"locked", "unlocked"}},
	{TypeAirQuality, "Air Quality Sensor", []string{"air", "quality", "co2"}, []string{"co2", "pm", "aqi"}, nil},
	{TypeSecurityCamera, "Security Camera", []string{"camera", "video"}, []string{"video", "recording"}, nil},
	{TypeWaterLeakSensor, "Water Leak Sensor", []string{"water", "leak", "flood"}, []string{"water", "leak"}, []string{"wet", "dry"}},
}

func (r typeRule) matches(topicLower string, keysLower []string, contentLower string) bool {
	for _, sub := range r.topic {
		if strings.Contains(topicLower, sub) {
			return true
		}
	}
	for _, sub := range r.keys {
		for _, key := range keysLower {
			if strings.Contains(key, sub) {
				return true
			}
		}
	}
	for _, sub := range r.content {
		if strings.Contains(contentLower, sub) {
			return true
		}
	}
	return false
}

// roomPatterns pull a candidate room segment out of a topic path.
// Tried in order: segment after "home/", second-to-last segment, any
// middle segment.
var roomPatterns = []*regexp.Regexp{
	regexp.MustCompile(`home/([^/]+)/`),
	regexp.MustCompile(`([^/]+)/[^/]+$`),
	regexp.MustCompile(`/([^/]+)/`),
}

// genericSegments never name a room.
var genericSegments = map[string]struct{}{
	"home":   {},
	"device": {},
	"sensor": {},
	"mqtt":   {},
}

// Classify inspects recent unmatched messages and suggests devices.
//
// The input is most-recent-first, so the first message seen per topic
// carries its latest payload. Command topics and deleted topics are
// skipped. The function is pure: no I/O and no mutation of its inputs;
// callers decide whether to persist the candidates.
func Classify(recent []Message, deleted map[string]struct{}) []Candidate {
	seen := make(map[string]struct{})
	var candidates []Candidate

	for _, msg := range recent {
		if IsCommandTopic(msg.Topic) {
			continue
		}
		if _, ok := deleted[msg.Topic]; ok {
			continue
		}
		if _, ok := seen[msg.Topic]; ok {
			continue
		}
		seen[msg.Topic] = struct{}{}

		data := ParsePayload([]byte(msg.Payload))
		devType, label := classifyType(msg.Topic, data)

		candidates = append(candidates, Candidate{
			Name:  label + " (" + capitalise(lastSegment(msg.Topic)) + ")",
			Type:  devType,
			Topic: msg.Topic,
			Room:  extractRoom(msg.Topic),
		})
	}

	return candidates
}

// classifyType scores the topic and payload against the rule list.
// Everything unrecognised falls back to a generic temperature sensor.
func classifyType(topic string, data DeviceData) (DeviceType, string) {
	topicLower := strings.ToLower(topic)

	keysLower := make([]string, 0, len(data))
	for k := range data {
		keysLower = append(keysLower, strings.ToLower(k))
	}

	raw, err := json.Marshal(data)
	var contentLower string
	if err == nil {
		contentLower = strings.ToLower(string(raw))
	}

	for _, rule := range typeRules {
		if rule.matches(topicLower, keysLower, contentLower) {
			return rule.deviceType, rule.label
		}
	}
	return TypeTemperatureSensor, "Unknown Device"
}

// extractRoom pulls a room name from the topic path, skipping generic
// segments. Defaults to "General".
func extractRoom(topic string) string {
	for _, re := range roomPatterns {
		m := re.FindStringSubmatch(topic)
		if m == nil {
			continue
		}
		seg := m[1]
		if _, generic := genericSegments[strings.ToLower(seg)]; generic {
			continue
		}
		return strings.NewReplacer("-", " ", "_", " ").Replace(capitalise(seg))
	}
	return "General"
}

func lastSegment(topic string) string {
	parts := strings.Split(topic, "/")
	last := parts[len(parts)-1]
	if last == "" {
		return "Device"
	}
	return last
}

func capitalise(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
