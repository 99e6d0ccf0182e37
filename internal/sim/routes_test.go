package sim

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/fisaks/mbconsole/internal/api"
	"github.com/fisaks/mbconsole/internal/config"
	"github.com/fisaks/mbconsole/internal/mbc"
	"github.com/fisaks/mbconsole/internal/version"
)

const testToken = "s3cret"

func newTestServer(t *testing.T) (*Service, *httptest.Server) {
	t.Helper()
	cfg := config.DefaultRemote()
	cfg.Token = testToken
	svc, _ := newTestService(cfg, dialTo(&fakeDevice{}))

	hub := NewHub(svc.Greeting)
	svc.AddSink(hub)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(NewHandler(svc, hub))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return svc, srv
}

func TestRoutesRequireToken(t *testing.T) {
	_, srv := newTestServer(t)
	ctx := context.Background()

	_, err := api.NewClient(srv.URL, "", time.Second).Config(ctx)
	require.ErrorIs(t, err, api.ErrUnauthorized)

	_, err = api.NewClient(srv.URL, "wrong", time.Second).Stats(ctx)
	require.ErrorIs(t, err, api.ErrUnauthorized)

	resp, err := api.NewClient(srv.URL, testToken, time.Second).Config(ctx)
	require.NoError(t, err)
	require.Equal(t, config.ProtocolTCP, resp.Config.Protocol)
	require.Equal(t, "mbc-sim", resp.Invocation)

	// query parameter works too
	res, err := http.Get(srv.URL + "/api/version?token=" + testToken)
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
}

func TestRoutesTokenNotRequired(t *testing.T) {
	svc, srv := newTestServer(t)
	cfg := svc.Config()
	cfg.RequireToken = false
	svc.UpdateConfig(cfg)

	v, err := api.NewClient(srv.URL, "", time.Second).Version(context.Background())
	require.NoError(t, err)
	require.Equal(t, version.Version, v)
}

func TestRoutesSaveConfigKeepsToken(t *testing.T) {
	svc, srv := newTestServer(t)
	client := api.NewClient(srv.URL, testToken, time.Second)

	cfg := svc.Config()
	cfg.Token = ""
	cfg.UnitID = 9
	cfg.TCP.Port = 1502
	resp, err := client.SaveConfig(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, testToken, resp.Config.Token)
	require.Equal(t, "mbc-sim --port 1502 --unit-id 9", resp.Invocation)
	require.Equal(t, uint8(9), svc.Config().UnitID)
}

func TestRoutesSaveConfigRejectsInvalid(t *testing.T) {
	svc, srv := newTestServer(t)
	cfg := svc.Config()
	cfg.TCP.Port = 0

	_, err := api.NewClient(srv.URL, testToken, time.Second).SaveConfig(context.Background(), cfg)
	var reqErr *api.RequestError
	require.ErrorAs(t, err, &reqErr)
	require.Equal(t, http.StatusBadRequest, reqErr.Status)
	require.Contains(t, reqErr.Message, "tcp.port")
}

func TestRoutesReadFlow(t *testing.T) {
	_, srv := newTestServer(t)
	client := api.NewClient(srv.URL, testToken, time.Second)
	ctx := context.Background()
	req := mbc.ReadRequest{Kind: mbc.HoldingRegisters, Address: 4, Quantity: 2, UnitID: 1}

	// not connected: the failure arrives as a delivered result
	res, err := client.Read(ctx, req)
	require.NoError(t, err)
	require.Equal(t, ErrNotConnected.Error(), res.ErrorMessage)

	st, err := client.Connect(ctx)
	require.NoError(t, err)
	require.True(t, st.Connected || st.Connecting)
	require.Eventually(t, func() bool {
		st, err := client.Status(ctx)
		return err == nil && st.Connected
	}, time.Second, 2*time.Millisecond)

	res, err = client.Read(ctx, req)
	require.NoError(t, err)
	require.False(t, res.Failed())
	require.Equal(t, []uint16{4, 5}, res.RegValues)

	stats, err := client.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), stats.ReadCount)
	require.Equal(t, uint64(1), stats.ErrorCount)

	st, err = client.Disconnect(ctx)
	require.NoError(t, err)
	require.False(t, st.Connected)
}

func TestRoutesSerialDevices(t *testing.T) {
	_, srv := newTestServer(t)
	devices, err := api.NewClient(srv.URL, testToken, time.Second).SerialDevices(context.Background())
	require.NoError(t, err)
	require.NotNil(t, devices)
}

func TestHubGreetsAndBroadcasts(t *testing.T) {
	svc, srv := newTestServer(t)
	client := api.NewClient(srv.URL+"/", testToken, time.Second)
	pushURL, err := client.PushURL()
	require.NoError(t, err)

	_, resp, err := websocket.DefaultDialer.Dial(pushURL[:len(pushURL)-len(testToken)]+"nope", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(pushURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var first mbc.Event
	require.NoError(t, conn.ReadJSON(&first))
	require.Equal(t, mbc.EventStatus, first.Type)

	require.NoError(t, svc.Connect())
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var ev struct {
			Type    mbc.EventType        `json:"type"`
			Payload mbc.ConnectionStatus `json:"payload"`
		}
		require.NoError(t, conn.ReadJSON(&ev))
		if ev.Type == mbc.EventStatus && ev.Payload.Connected {
			break
		}
	}
}
