// Package config loads config.yaml for HomeSense Core.
//
// Values are resolved in three layers: built-in defaults, the YAML file,
// then HOMESENSE_* environment variables. Validate reports every problem
// in one error so a bad file can be fixed in a single pass.
//
// Cloud credentials (Tuya local key, SwitchBot token, MQTT password,
// InfluxDB token) belong in the environment or a .env file beside the
// binary, not in the YAML.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.Site.Name, cfg.API.Port)
package config
