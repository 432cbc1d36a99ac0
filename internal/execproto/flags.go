package execproto

import "encoding/json"

// EncodeConf marshals a ServiceConfig for the --conf flag.
func EncodeConf(c ServiceConfig) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeConf unmarshals a --conf flag value.
func DecodeConf(s string) (ServiceConfig, error) {
	var c ServiceConfig
	err := json.Unmarshal([]byte(s), &c)
	return c, err
}

// EncodeEnv marshals an EnvVar slice for the --env flag.
func EncodeEnv(vars []EnvVar) (string, error) {
	b, err := json.Marshal(vars)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeEnv unmarshals a --env flag value.
func DecodeEnv(s string) ([]EnvVar, error) {
	var vars []EnvVar
	err := json.Unmarshal([]byte(s), &vars)
	return vars, err
}
