// Package upnp wraps the goupnp SOAP clients and the SSDP monitor behind
// the callback interfaces the rest of the system consumes: discovery
// events feeding the renderer registry, and asynchronous begin-action
// calls with completion callbacks.
package upnp

import (
	"fmt"
	"strconv"

	"github.com/huin/goupnp/dcps/av1"

	"github.com/zsiec/dlnacast/renderer"
)

// serviceActor adapts a synchronous typed SOAP client to the asynchronous
// renderer.Actor contract: each Begin runs the call on its own goroutine
// and reports through done exactly once. Cancellation is not supported;
// the SOAP client's own HTTP timeout bounds each call.
type serviceActor struct {
	call func(action string, args map[string]string) (map[string]string, error)
}

func (a *serviceActor) Begin(action string, args map[string]string, done func(map[string]string, error)) {
	go func() {
		out, err := a.call(action, args)
		if done != nil {
			done(out, err)
		}
	}()
}

func instanceID(args map[string]string) uint32 {
	if v, err := strconv.ParseUint(args["InstanceID"], 10, 32); err == nil {
		return uint32(v)
	}
	return 0
}

func newAVTransportActor(c *av1.AVTransport1) renderer.Actor {
	return &serviceActor{call: func(action string, args map[string]string) (map[string]string, error) {
		id := instanceID(args)
		switch action {
		case "SetAVTransportURI":
			return nil, c.SetAVTransportURI(id, args["CurrentURI"], args["CurrentURIMetaData"])
		case "Play":
			speed := args["Speed"]
			if speed == "" {
				speed = "1"
			}
			return nil, c.Play(id, speed)
		case "Stop":
			return nil, c.Stop(id)
		case "Pause":
			return nil, c.Pause(id)
		case "GetTransportInfo":
			state, status, speed, err := c.GetTransportInfo(id)
			if err != nil {
				return nil, err
			}
			return map[string]string{
				"CurrentTransportState":  state,
				"CurrentTransportStatus": status,
				"CurrentSpeed":           speed,
			}, nil
		default:
			return nil, fmt.Errorf("unsupported AVTransport action %q", action)
		}
	}}
}

func newRenderingControlActor(c *av1.RenderingControl1) renderer.Actor {
	return &serviceActor{call: func(action string, args map[string]string) (map[string]string, error) {
		id := instanceID(args)
		channel := args["Channel"]
		if channel == "" {
			channel = "Master"
		}
		switch action {
		case "GetVolume":
			vol, err := c.GetVolume(id, channel)
			if err != nil {
				return nil, err
			}
			return map[string]string{"CurrentVolume": strconv.FormatUint(uint64(vol), 10)}, nil
		case "SetVolume":
			vol, err := strconv.ParseUint(args["DesiredVolume"], 10, 16)
			if err != nil {
				return nil, fmt.Errorf("bad DesiredVolume %q: %w", args["DesiredVolume"], err)
			}
			return nil, c.SetVolume(id, channel, uint16(vol))
		default:
			return nil, fmt.Errorf("unsupported RenderingControl action %q", action)
		}
	}}
}

func newConnectionManagerActor(c *av1.ConnectionManager1) renderer.Actor {
	return &serviceActor{call: func(action string, args map[string]string) (map[string]string, error) {
		switch action {
		case "GetProtocolInfo":
			source, sink, err := c.GetProtocolInfo()
			if err != nil {
				return nil, err
			}
			return map[string]string{"Source": source, "Sink": sink}, nil
		default:
			return nil, fmt.Errorf("unsupported ConnectionManager action %q", action)
		}
	}}
}
