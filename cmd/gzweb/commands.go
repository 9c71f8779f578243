package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"

	"github.com/gazebo-web/gzweb-sub000/gzclient"
	"github.com/gazebo-web/gzweb-sub000/schema"
)

var (
	topicColor = color.New(color.FgCyan).SprintFunc()
	typeColor  = color.New(color.FgYellow).SprintFunc()
	okColor    = color.New(color.FgGreen).SprintFunc()
)

func runCommand(ctx context.Context, client *gzclient.Client, scenes <-chan map[string]any,
	flags *cliFlags, args []string) error {
	switch cmd := args[0]; cmd {
	case "topics":
		return cmdTopics(client)
	case "world":
		return cmdWorld(client)
	case "scene":
		return cmdScene(ctx, scenes)
	case "echo":
		if len(args) < 2 {
			return fmt.Errorf("usage: %s echo <topic>", appName)
		}
		return cmdEcho(ctx, client, args[1], flags.count)
	case "asset":
		if len(args) < 2 {
			return fmt.Errorf("usage: %s asset <uri>", appName)
		}
		return cmdAsset(ctx, client, args[1], flags.output)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdTopics(client *gzclient.Client) error {
	topics := client.AvailableTopics()
	if len(topics) == 0 {
		fmt.Println("no topics advertised")
		return nil
	}
	for _, t := range topics {
		fmt.Printf("%s  %s\n", topicColor(t.Name), typeColor(t.MessageTypeName))
	}
	return nil
}

func cmdWorld(client *gzclient.Client) error {
	fmt.Println(okColor(client.World()))
	return nil
}

func cmdScene(ctx context.Context, scenes <-chan map[string]any) error {
	select {
	case scene := <-scenes:
		out, err := json.MarshalIndent(scene, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to render scene: %w", err)
		}
		fmt.Println(string(out))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func cmdEcho(ctx context.Context, client *gzclient.Client, topicName string, count int) error {
	msgs := make(chan schema.Message, 64)
	err := client.Subscribe(topicName, func(msg schema.Message) {
		select {
		case msgs <- msg:
		default:
			// Printing falls behind delivery; drop rather than block the socket.
		}
	})
	if err != nil {
		return err
	}
	defer func() { _ = client.Unsubscribe(topicName) }()

	fmt.Fprintf(os.Stderr, "echoing %s (ctrl-c to stop)\n", topicColor(topicName))

	printed := 0
	for {
		select {
		case msg := <-msgs:
			out, err := json.Marshal(msg)
			if err != nil {
				return fmt.Errorf("failed to render message: %w", err)
			}
			fmt.Println(string(out))
			printed++
			if count > 0 && printed >= count {
				return nil
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func cmdAsset(ctx context.Context, client *gzclient.Client, uri, output string) error {
	type result struct {
		data []byte
		err  error
	}
	results := make(chan result, 1)

	err := client.RequestAsset(uri, func(_ string, data []byte, err error) {
		results <- result{data: data, err: err}
	})
	if err != nil {
		return err
	}

	select {
	case res := <-results:
		if res.err != nil {
			return res.err
		}
		if output == "" {
			_, err := os.Stdout.Write(res.data)
			return err
		}
		if err := os.WriteFile(output, res.data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", output, err)
		}
		fmt.Fprintf(os.Stderr, "%s %s (%d bytes)\n", okColor("wrote"), output, len(res.data))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
