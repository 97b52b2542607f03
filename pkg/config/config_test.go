package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "gw.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestBuiltinValid(t *testing.T) {
	conf := Builtin()
	require.NoError(t, Validate(&conf))
	assert.Equal(t, "Greenhouse", conf.Hub.Name)
	assert.Equal(t, time.Second, conf.Timing.Sample)
	assert.Equal(t, 30*time.Second, conf.Timing.Pairing)
}

func TestLoadOverlaysBase(t *testing.T) {
	path := writeFile(t, `
id: gw-7
hub:
  name: Barn
timing:
  broadcast: 5s
radio:
  kind: mqtt
  topic: farm/hub
sensors:
  kind: modbus
  modbus:
    url: tcp://10.0.0.5:502
    slave_id: 3
    temperature: {address: 1, signed: true, scale: 10}
    humidity: {address: 2, scale: 10}
`)
	conf, err := Load(path, Builtin())
	require.NoError(t, err)
	require.NoError(t, Validate(conf))
	assert.Equal(t, "gw-7", conf.GatewayID())
	assert.Equal(t, "Barn", conf.Hub.Name)
	assert.Equal(t, "Temperature,Humidity,Lux,Distance", conf.Hub.Fields)
	assert.Equal(t, 5*time.Second, conf.Timing.Broadcast)
	assert.Equal(t, time.Second, conf.Timing.Sample)
	assert.Equal(t, KindMQTT, conf.Radio.Kind)
	assert.Equal(t, byte(3), conf.Sensors.Modbus.SlaveID)
	require.NotNil(t, conf.Sensors.Modbus.Temperature)
	assert.True(t, conf.Sensors.Modbus.Temperature.Signed)
	assert.Nil(t, conf.Sensors.Modbus.Lux)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeFile(t, "hubname: x\n"), Builtin())
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		modify func(*Config)
	}{
		{"hub colon", func(c *Config) { c.Hub.Name = "a:b" }},
		{"hub empty", func(c *Config) { c.Hub.Name = "" }},
		{"schema mismatch", func(c *Config) { c.Hub.Types = "1,2" }},
		{"console kind", func(c *Config) { c.Console.Kind = "tty" }},
		{"mqtt required", func(c *Config) { c.MQTTURL = "" }},
		{"serial console device", func(c *Config) { c.Console.Kind = KindSerial }},
		{"zero period", func(c *Config) { c.Timing.Comm = 0 }},
		{"modbus url", func(c *Config) { c.Sensors.Kind = KindModbus }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			conf := Builtin()
			tc.modify(&conf)
			assert.Error(t, Validate(&conf))
		})
	}
}

func TestMachineID(t *testing.T) {
	assert.NotEmpty(t, MachineID())
	conf := Builtin()
	assert.NotEmpty(t, conf.GatewayID())
}
