package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"drone-relay/control"
)

// telloState 是模拟无人机上报的状态串，格式与 Tello SDK 一致。
const telloState = "pitch:0;roll:0;yaw:0;vgx:0;vgy:0;vgz:0;templ:60;temph:63;tof:10;h:0;bat:87;baro:12.34;time:0;agx:0.00;agy:0.00;agz:-1000.00;"

type simulator struct {
	base   string
	relay  string
	client *http.Client
}

// main 启动中继盒模拟器。
// 使用说明：
// - 以中继身份握手并周期性发送心跳
// - 为每架模拟无人机申请视频端口，并按给定速率向视频端口推送数据报
// - 轮询起飞/降落指令并确认，上报 Tello 格式状态串
// - 可选：以观看端身份加入视频会话，统计收到的数据报
func main() {
	fs := pflag.NewFlagSet("relay-sim", pflag.ExitOnError)
	addr := fs.String("addr", "http://127.0.0.1:8000", "控制面地址")
	name := fs.String("name", "relay-1", "中继名")
	password := fs.String("password", "", "中继口令")
	drones := fs.StringSlice("drone", []string{"tello-1"}, "模拟无人机名（可重复）")
	fps := fs.Float64("fps", 30, "每架无人机每秒发送的视频数据报数")
	size := fs.Int("size", 1200, "视频数据报大小（字节）")
	heartbeat := fs.Duration("heartbeat", 2*time.Second, "心跳间隔")
	poll := fs.Duration("poll", 500*time.Millisecond, "指令轮询间隔")
	viewer := fs.Bool("viewer", false, "同时以观看端身份接收视频")
	duration := fs.Duration("duration", 0, "运行时长，0 表示直到收到退出信号")
	_ = fs.Parse(os.Args[1:])

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	sim := &simulator{base: *addr, relay: *name, client: &http.Client{Timeout: 5 * time.Second}}
	if err := sim.call(ctx, "/v1/api/relay/handshake", control.RelayIdentityRequest{Name: *name, Password: *password}, nil); err != nil {
		fail(err)
	}
	fmt.Printf("handshake ok relay=%s\n", *name)

	host := hostOf(*addr)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sim.heartbeatLoop(gctx, *heartbeat) })

	var rx atomic.Int64
	for _, d := range *drones {
		var resp control.NewDroneResponse
		if err := sim.call(ctx, "/v1/api/relay/new_drone", control.NewDroneRequest{Name: d, Parent: *name}, &resp); err != nil {
			fail(err)
		}
		fmt.Printf("drone=%s video_port=%d status_port=%d session=%s\n", d, resp.VideoPort, resp.StatusPort, resp.SessionID)

		target := fmt.Sprintf("%s:%d", host, resp.VideoPort)
		drone := d
		g.Go(func() error { return sim.controlLoop(gctx, drone, *poll) })
		g.Go(func() error { return pushVideo(gctx, target, *fps, *size) })
		if *viewer {
			g.Go(func() error { return watchVideo(gctx, target, &rx) })
		}
	}

	err := g.Wait()
	_ = sim.call(context.Background(), "/v1/api/relay/disconnect", control.RelayNameRequest{Name: *name}, nil)
	if *viewer {
		fmt.Printf("viewer received %d datagrams\n", rx.Load())
	}
	if err != nil && ctx.Err() == nil {
		fail(err)
	}
}

// heartbeatLoop 周期性发送心跳，直到 ctx 取消。
func (s *simulator) heartbeatLoop(ctx context.Context, every time.Duration) error {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := s.call(ctx, "/v1/api/relay/heartbeat", control.RelayNameRequest{Name: s.relay}, nil); err != nil {
				return fmt.Errorf("heartbeat: %w", err)
			}
		}
	}
}

// controlLoop 模拟中继盒侧的飞控轮询：起飞/降落指令确认、摇杆指令拉取与状态上报。
func (s *simulator) controlLoop(ctx context.Context, drone string, every time.Duration) error {
	req := control.DroneRequest{Name: drone, Parent: s.relay}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		if s.call(ctx, "/v1/api/relay/drone/should_takeoff", req, nil) == nil {
			if err := s.call(ctx, "/v1/api/relay/drone/successful_takeoff", req, nil); err == nil {
				fmt.Printf("drone=%s airborne\n", drone)
			}
		}
		if s.call(ctx, "/v1/api/relay/drone/should_land", req, nil) == nil {
			if err := s.call(ctx, "/v1/api/relay/drone/successful_land", req, nil); err == nil {
				fmt.Printf("drone=%s landed\n", drone)
			}
		}
		var cmd control.CommandResponse
		if s.call(ctx, "/v1/api/relay/drone/cmd", req, &cmd) == nil && cmd.Cmd != [4]int{} {
			fmt.Printf("drone=%s rc=%v\n", drone, cmd.Cmd)
		}
		_ = s.call(ctx, "/v1/api/relay/drone/status_information", control.StatusInformationRequest{
			Name:              drone,
			Parent:            s.relay,
			StatusInformation: telloState,
		}, nil)
	}
}

// pushVideo 以 fps 的速率向视频端口发送固定大小的数据报。
func pushVideo(ctx context.Context, target string, fps float64, size int) error {
	conn, err := net.Dial("udp", target)
	if err != nil {
		return err
	}
	defer conn.Close()

	lim := rate.NewLimiter(rate.Limit(fps), 1)
	payload := bytes.Repeat([]byte{0x47}, size)
	for {
		if err := lim.Wait(ctx); err != nil {
			return nil
		}
		_, _ = conn.Write(payload)
	}
}

// watchVideo 以观看端身份加入会话并计数收到的数据报。
func watchVideo(ctx context.Context, target string, rx *atomic.Int64) error {
	conn, err := net.Dial("udp", target)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	// 先发一个数据报让中继记录观看端地址
	_, _ = conn.Write([]byte("hello"))
	buf := make([]byte, 65535)
	for {
		if _, err := conn.Read(buf); err != nil {
			return nil
		}
		rx.Add(1)
	}
}

// call 以 JSON POST 调用控制面，非 200 响应转换为错误。
func (s *simulator) call(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.base+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var e control.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("%s: %d %s", path, resp.StatusCode, e.Error)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func hostOf(base string) string {
	u, err := url.Parse(base)
	if err != nil || u.Hostname() == "" {
		return "127.0.0.1"
	}
	return u.Hostname()
}

func fail(err error) {
	_, _ = fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
