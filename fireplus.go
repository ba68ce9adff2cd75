package fireplus

// Identity of the integration as shown to downstream consumers
// (sensor payloads, MQTT discovery, API docs).
const (
	Domain       = "drooff_fireplus"
	Attribution  = "Data provided by Drooff Fire+ Local API"
	Manufacturer = "Drooff"
	Model        = "Fire+"
	Version      = "0.3.0"
)
