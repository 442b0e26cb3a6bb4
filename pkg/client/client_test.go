package client

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/shoenig/test/must"
	"github.com/shoenig/test/wait"

	"github.com/abennett/grimoire/pkg/catalog"
	"github.com/abennett/grimoire/pkg/dice"
	"github.com/abennett/grimoire/pkg/engine"
	"github.com/abennett/grimoire/pkg/messages"
	"github.com/abennett/grimoire/pkg/server"
)

func newTestServer() (*server.Server, *httptest.Server) {
	srv := server.NewServer(catalog.Default(), engine.New(dice.NewSource()))
	mux := server.NewMux(srv)
	return srv, httptest.NewServer(mux)
}

func request(user string) messages.EvalRequest {
	return messages.EvalRequest{
		User:        user,
		Action:      "strike",
		WeaponRank:  "B",
		MasteryRank: "C",
	}
}

func TestSingleClient(t *testing.T) {
	t.Parallel()
	srv, testSrv := newTestServer()

	client, err := New(testSrv.URL, "test1", request("tester"), io.Discard)
	must.NoError(t, err)

	err = client.Init()
	must.NoError(t, err)

	must.MapContainsKey(t, srv.GetRooms(), "test1")
	must.Wait(t, wait.InitialSuccess(wait.BoolFunc(func() bool {
		return len(client.Room.Results) > 0
	})))

	roomState := srv.GetRooms()["test1"]
	must.Eq(t, roomState, client.Room)
	t.Log(roomState)
}

func TestMultipleClients(t *testing.T) {
	t.Parallel()
	srv, testSrv := newTestServer()

	client1, err := New(testSrv.URL, "test1", request("tester1"), io.Discard)
	must.NoError(t, err)

	client2, err := New(testSrv.URL, "test1", request("tester2"), io.Discard)
	must.NoError(t, err)

	err = client1.Init()
	must.NoError(t, err)

	err = client2.Init()
	must.NoError(t, err)

	must.MapContainsKey(t, srv.GetRooms(), "test1")
	must.Wait(t, wait.InitialSuccess(wait.BoolFunc(func() bool {
		return client1.Room.Version == 2
	})))
	must.Wait(t, wait.InitialSuccess(wait.BoolFunc(func() bool {
		return client2.Room.Version == 2
	})))

	roomState := srv.GetRooms()["test1"]
	must.Eq(t, roomState, client1.Room)
	must.Eq(t, roomState, client2.Room)
	t.Log(roomState)
}
