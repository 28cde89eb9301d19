package core

import "gopkg.in/yaml.v3"

// DecodeConfigSection decodes a config section into a struct.
// Empty string values are skipped so unset env vars do not clobber the
// defaults already present in out. Duration fields accept "3s"-style strings.
// It is safe to call with a nil or empty section.
func DecodeConfigSection(section map[string]any, out any) error {
	if len(section) == 0 {
		return nil
	}
	cleaned := make(map[string]any, len(section))
	for k, v := range section {
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		cleaned[k] = v
	}
	data, err := yaml.Marshal(cleaned)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, out)
}
