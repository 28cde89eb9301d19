package core

type Capability string // Capabilities of services

const (
	CapabilityNotifier Capability = "NOTIFIER"
	CapabilityAPI      Capability = "API"
	CapabilityTrigger  Capability = "TRIGGER"
	CapabilitySecrets  Capability = "secrets"
	CapabilityUpdates  Capability = "UPDATES"
)
