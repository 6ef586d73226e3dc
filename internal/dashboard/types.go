package dashboard

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DeviceType is the key into the static type-config table.
type DeviceType string

// Device type constants.
const (
	TypeTemperatureSensor DeviceType = "temperature_sensor"
	TypeHumiditySensor    DeviceType = "humidity_sensor"
	TypeDoorSensor        DeviceType = "door_sensor"
	TypeRelay             DeviceType = "relay"
	TypeMotionSensor      DeviceType = "motion_sensor"
	TypeDistanceSensor    DeviceType = "distance_sensor"
	TypeSmartThermostat   DeviceType = "smart_thermostat"
	TypeSmartLock         DeviceType = "smart_lock"
	TypeAirQuality        DeviceType = "air_quality"
	TypeSecurityCamera    DeviceType = "security_camera"
	TypeWaterLeakSensor   DeviceType = "water_leak_sensor"
)

// TypeConfig describes how a device type is presented and controlled.
// The table is read-only input data; it decorates newly added and
// auto-detected devices.
type TypeConfig struct {
	Name         string   `json:"name"`
	Icon         string   `json:"icon"`
	Controllable bool     `json:"controllable"`
	Units        string   `json:"units,omitempty"`
	States       []string `json:"states,omitempty"`
	Controls     []string `json:"controls,omitempty"`
}

var typeConfigs = map[DeviceType]TypeConfig{
	TypeTemperatureSensor: {Name: "Temperature Sensor", Icon: "thermometer", Units: "°C"},
	TypeHumiditySensor:    {Name: "Humidity Sensor", Icon: "droplet", Units: "%"},
	TypeDoorSensor:        {Name: "Door Sensor", Icon: "door-closed", States: []string{"open", "closed"}},
	TypeRelay:             {Name: "Smart Relay", Icon: "power", Controllable: true, States: []string{"on", "off"}, Controls: []string{"toggle"}},
	TypeMotionSensor:      {Name: "Motion Sensor", Icon: "radar", States: []string{"detected", "clear"}},
	TypeDistanceSensor:    {Name: "Distance Sensor", Icon: "ruler", Units: "cm"},
	TypeSmartThermostat:   {Name: "Thermostat", Icon: "thermostat", Controllable: true, Units: "°C", Controls: []string{"set_target", "set_mode"}},
	TypeSmartLock:         {Name: "Smart Lock", Icon: "lock", Controllable: true, States: []string{"locked", "unlocked"}, Controls: []string{"lock", "unlock"}},
	TypeAirQuality:        {Name: "Air Quality Sensor", Icon: "wind", Units: "ppm"},
	TypeSecurityCamera:    {Name: "Security Camera", Icon: "camera", States: []string{"recording", "idle"}},
	TypeWaterLeakSensor:   {Name: "Water Leak Sensor", Icon: "droplets", States: []string{"wet", "dry"}},
}

// TypeConfigFor returns the config for a device type.
// Unknown types return ok=false with a zero config.
func TypeConfigFor(t DeviceType) (TypeConfig, bool) {
	cfg, ok := typeConfigs[t]
	return cfg, ok
}

// AllTypeConfigs returns a copy of the static type-config table.
func AllTypeConfigs() map[DeviceType]TypeConfig {
	out := make(map[DeviceType]TypeConfig, len(typeConfigs))
	for k, v := range typeConfigs {
		out[k] = v
	}
	return out
}

// ValueKind tags the JSON type of a payload value so the presentation
// layer can branch on an explicit tag instead of loose coercion.
type ValueKind string

// Value kinds.
const (
	KindNumber ValueKind = "number"
	KindString ValueKind = "string"
	KindBool   ValueKind = "bool"
	KindObject ValueKind = "object"
	KindArray  ValueKind = "array"
	KindNull   ValueKind = "null"
)

// Value is a single payload field with an explicit type tag.
// It marshals to and from plain JSON values.
type Value struct {
	Kind   ValueKind
	Num    float64
	Str    string
	Bool   bool
	Object map[string]Value
	Array  []Value
}

// valueFrom converts a decoded JSON value into a tagged Value.
func valueFrom(v any) Value {
	switch t := v.(type) {
	case nil:
		return Value{Kind: KindNull}
	case float64:
		return Value{Kind: KindNumber, Num: t}
	case string:
		return Value{Kind: KindString, Str: t}
	case bool:
		return Value{Kind: KindBool, Bool: t}
	case map[string]any:
		obj := make(map[string]Value, len(t))
		for k, elem := range t {
			obj[k] = valueFrom(elem)
		}
		return Value{Kind: KindObject, Object: obj}
	case []any:
		arr := make([]Value, len(t))
		for i, elem := range t {
			arr[i] = valueFrom(elem)
		}
		return Value{Kind: KindArray, Array: arr}
	default:
		return Value{Kind: KindString, Str: fmt.Sprint(t)}
	}
}

// Interface converts the tagged value back to a plain JSON-compatible value.
func (v Value) Interface() any {
	switch v.Kind {
	case KindNumber:
		return v.Num
	case KindString:
		return v.Str
	case KindBool:
		return v.Bool
	case KindObject:
		obj := make(map[string]any, len(v.Object))
		for k, elem := range v.Object {
			obj[k] = elem.Interface()
		}
		return obj
	case KindArray:
		arr := make([]any, len(v.Array))
		for i, elem := range v.Array {
			arr[i] = elem.Interface()
		}
		return arr
	default:
		return nil
	}
}

// clone returns an independent copy of the value.
func (v Value) clone() Value {
	cpy := v
	if v.Object != nil {
		cpy.Object = make(map[string]Value, len(v.Object))
		for k, elem := range v.Object {
			cpy.Object[k] = elem.clone()
		}
	}
	if v.Array != nil {
		cpy.Array = make([]Value, len(v.Array))
		for i, elem := range v.Array {
			cpy.Array[i] = elem.clone()
		}
	}
	return cpy
}

// MarshalJSON writes the value as its plain JSON form.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// UnmarshalJSON reads any JSON value into its tagged form.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = valueFrom(raw)
	return nil
}

// DeviceData is the last-known payload of a device, replaced wholesale
// on each matching message.
type DeviceData map[string]Value

// ParsePayload decodes an MQTT payload into device data.
// JSON objects map field-by-field; scalar JSON and unparseable payloads
// are wrapped under a "value" key, so malformed input is never rejected.
func ParsePayload(payload []byte) DeviceData {
	var raw any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return DeviceData{"value": {Kind: KindString, Str: string(payload)}}
	}
	if obj, ok := raw.(map[string]any); ok {
		data := make(DeviceData, len(obj))
		for k, elem := range obj {
			data[k] = valueFrom(elem)
		}
		return data
	}
	return DeviceData{"value": valueFrom(raw)}
}

func (d DeviceData) clone() DeviceData {
	if d == nil {
		return nil
	}
	cpy := make(DeviceData, len(d))
	for k, v := range d {
		cpy[k] = v.clone()
	}
	return cpy
}

// Device is a logical entity bound to one MQTT topic pattern.
type Device struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Type         DeviceType `json:"type"`
	Topic        string     `json:"topic"`
	Room         string     `json:"room"`
	Icon         string     `json:"icon"`
	Controllable bool       `json:"controllable"`
	Enabled      bool       `json:"enabled"`
	Data         DeviceData `json:"data"`
	IsOnline     bool       `json:"isOnline"`
	LastUpdated  *time.Time `json:"lastUpdated,omitempty"`
}

// Valid reports whether the record has usable identity fields.
// Records that fail this check are excluded from every view and from
// layout, and removed by cleanup.
func (d *Device) Valid() bool {
	return validField(d.ID) && validField(d.Name) && validField(d.Topic)
}

func validField(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && s != "null" && s != "undefined"
}

// DeepCopy returns an independent copy of the device.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}
	cpy := *d
	cpy.Data = d.Data.clone()
	if d.LastUpdated != nil {
		t := *d.LastUpdated
		cpy.LastUpdated = &t
	}
	return &cpy
}

// Grid geometry bounds for dashboard tiles.
const (
	layoutMinW = 2
	layoutMaxW = 12
	layoutMinH = 2
	layoutMaxH = 8

	defaultTileW = 4
	defaultTileH = 4
)

// LayoutEntry is the grid geometry for one device tile, keyed by device ID.
type LayoutEntry struct {
	X    int `json:"x"`
	Y    int `json:"y"`
	W    int `json:"w"`
	H    int `json:"h"`
	MinW int `json:"minW"`
	MaxW int `json:"maxW"`
	MinH int `json:"minH"`
	MaxH int `json:"maxH"`
}

// clampLayout normalises geometry to the grid bounds.
func clampLayout(e LayoutEntry) LayoutEntry {
	e.X = max(0, e.X)
	e.Y = max(0, e.Y)
	e.W = min(layoutMaxW, max(layoutMinW, e.W))
	e.H = min(layoutMaxH, max(layoutMinH, e.H))
	e.MinW = layoutMinW
	e.MaxW = layoutMaxW
	e.MinH = layoutMinH
	e.MaxH = layoutMaxH
	return e
}

// Filter wildcard values.
const (
	FilterAll     = "all"
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Filters is transient view state, persisted alongside devices for
// session continuity. It is not part of device identity.
type Filters struct {
	Type         string `json:"type"`
	Status       string `json:"status"`
	Search       string `json:"search"`
	Room         string `json:"room"`
	Controllable string `json:"controllable"`
	Enabled      string `json:"enabled"`
}

// DefaultFilters returns the unfiltered view.
func DefaultFilters() Filters {
	return Filters{Type: FilterAll, Status: FilterAll, Enabled: FilterAll}
}

// Snapshot is the full persisted dashboard state for one user.
type Snapshot struct {
	Devices       []Device               `json:"devices"`
	DeviceLayouts map[string]LayoutEntry `json:"deviceLayouts"`
	DeletedTopics []string               `json:"deletedTopics"`
	DeviceFilters Filters                `json:"deviceFilters"`
	LastUpdated   time.Time              `json:"lastUpdated"`
}

// Message is one MQTT message as delivered by the transport.
type Message struct {
	Topic      string    `json:"topic"`
	Payload    string    `json:"payload"`
	ReceivedAt time.Time `json:"receivedAt"`
}
