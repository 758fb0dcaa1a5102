/*
Package config loads the queue core's startup configuration: db_path,
max_key_updates, and the list of queues to create on boot. Loading
follows the project's existing YAML-manifest-loading pattern
(os.ReadFile then yaml.Unmarshal) into a small typed Config.
*/
package config
