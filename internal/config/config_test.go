package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fisaks/mbconsole/internal/decode"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConsoleJSONWithComments(t *testing.T) {
	path := writeFile(t, "console.json", `{
  // where the service listens
  "baseUrl": "http://10.0.0.5:8502",
  /* shared secret */
  "token": "s3cret",
  "columns": 16
}`)

	cfg, err := LoadConsole(path)
	require.NoError(t, err)
	require.Equal(t, "http://10.0.0.5:8502", cfg.BaseURL)
	require.Equal(t, "s3cret", cfg.Token)
	require.Equal(t, 16, cfg.Columns)
	require.True(t, cfg.AutoConnect, "defaults survive a partial file")
	require.Equal(t, PushWebSocket, cfg.Push)
}

func TestLoadConsoleRejectsUnknownFields(t *testing.T) {
	_, err := LoadConsole(writeFile(t, "console.json", `{"baseUrl":"http://x","colums":8}`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid JSON")
}

func TestLoadConsoleYAML(t *testing.T) {
	path := writeFile(t, "console.yaml", `
baseUrl: http://127.0.0.1:9000
push: mqtt
mqtt:
  brokerUrl: tcp://broker:1883
  topicPrefix: plant1
autoConnect: false
`)
	cfg, err := LoadConsole(path)
	require.NoError(t, err)
	require.Equal(t, PushMQTT, cfg.Push)
	require.Equal(t, "plant1", cfg.MQTT.TopicPrefix)
	require.False(t, cfg.AutoConnect)

	_, err = LoadConsole(writeFile(t, "bad.yml", "baseUrl: x\nunknown: 1\n"))
	require.Error(t, err)
}

func TestConsoleValidateCollectsErrors(t *testing.T) {
	cfg := Console{Push: "carrier-pigeon", Columns: 12, LogLimit: -1}
	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	require.True(t, strings.HasPrefix(msg, "validation errors: "))
	require.Contains(t, msg, "baseUrl is required")
	require.Contains(t, msg, "push must be")
	require.Contains(t, msg, "columns must be 8 or 16")
	require.Contains(t, msg, "logLimit cannot be negative")
}

func TestConsoleApplyEnv(t *testing.T) {
	t.Setenv("MBC_BASE_URL", "http://env:1")
	t.Setenv("MBC_TOKEN", "tok")
	t.Setenv("MBC_PUSH", "MQTT")
	t.Setenv("MQTT_URL", "tcp://env:1883")

	cfg := DefaultConsole()
	cfg.ApplyEnv()
	require.Equal(t, "http://env:1", cfg.BaseURL)
	require.Equal(t, "tok", cfg.Token)
	require.Equal(t, PushMQTT, cfg.Push)
	require.Equal(t, "tcp://env:1883", cfg.MQTT.BrokerURL)
}

func TestRemoteInvocation(t *testing.T) {
	cfg := DefaultRemote()
	require.Equal(t, "mbc-sim", cfg.Invocation())

	cfg.TCP.Host = "192.168.1.20"
	cfg.UnitID = 7
	cfg.RequireToken = false
	require.Equal(t, "mbc-sim --host 192.168.1.20 --unit-id 7 --no-token", cfg.Invocation())

	rtu := DefaultRemote()
	rtu.Protocol = ProtocolRTU
	rtu.Serial.Device = "/dev/ttyUSB1"
	rtu.Serial.Speed = 19200
	rtu.Serial.Parity = "even"
	require.Equal(t, "mbc-sim --serial /dev/ttyUSB1 --speed 19200 --parity even", rtu.Invocation())
}

func TestRemoteValidate(t *testing.T) {
	require.NoError(t, DefaultRemote().Validate())

	cfg := DefaultRemote()
	cfg.Protocol = ProtocolRTU
	cfg.Serial.Parity = "mark"
	cfg.AddressBase = 2
	cfg.ValueBase = 8
	cfg.Decoders = cfg.Decoders.Put(decode.Descriptor{Type: decode.Float32, Endianness: "middle", WordOrder: decode.HighFirst})
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "serial.parity")
	require.Contains(t, err.Error(), "addressBase must be 0 or 1")
	require.Contains(t, err.Error(), "valueBase must be 10 or 16")
	require.Contains(t, err.Error(), "endianness must be big or little")
}

func TestRemoteCloneIsIndependent(t *testing.T) {
	a := DefaultRemote()
	b := a.Clone()
	b.Decoders[0].Enabled = true
	require.False(t, a.Decoders[0].Enabled)
}

func TestLoadRemote(t *testing.T) {
	path := writeFile(t, "remote.json", `{"tcp":{"host":"plc.local","port":1502},"requireToken":false}`)
	cfg, err := LoadRemote(path)
	require.NoError(t, err)
	require.Equal(t, "plc.local:1502", cfg.TCP.Addr())
	require.Equal(t, uint8(1), cfg.UnitID)
}

func TestStripJSONCommentsKeepsURLs(t *testing.T) {
	out := stripJSONComments([]byte("{\n  // note\n  \"u\": \"http://a/b\"\n}"))
	require.Contains(t, string(out), "http://a/b")
	require.NotContains(t, string(out), "note")
}
