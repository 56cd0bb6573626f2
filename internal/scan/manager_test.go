package scan

import "testing"

func TestParseCommand(t *testing.T) {
	cmd, err := ParseCommand([]byte(`{"action":"start","station_id":"2b8e6f9c-0000-0000-0000-000000000001","camera_url":"rtsp://cam/1","fps":5}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cmd.Action != "start" || cmd.CameraURL != "rtsp://cam/1" || cmd.FPS != 5 {
		t.Errorf("unexpected command: %+v", cmd)
	}

	if _, err := ParseCommand([]byte(`{not json`)); err == nil {
		t.Fatal("expected an error for malformed payload")
	}
}
