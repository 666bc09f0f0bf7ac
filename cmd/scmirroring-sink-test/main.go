package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/life-stream-dev/go-scmirroring/pkg/scmirroring"
)

func displayMenu() {
	title := color.New(color.FgCyan, color.Bold)
	fmt.Println()
	title.Println("=====================================================================")
	title.Println("             SCMIRRORING Sink Testsuite (press q to quit)")
	title.Println("=====================================================================")
	fmt.Println("a : a ip port (ex. a 192.168.49.1 2022)")
	fmt.Println("p : Prepare")
	fmt.Println("C : Connect")
	fmt.Println("S : Start")
	fmt.Println("P : Pause")
	fmt.Println("R : Resume")
	fmt.Println("I : dIsconnect")
	fmt.Println("u : Unprepare")
	fmt.Println("g : print negotiated parameters")
	fmt.Println("D : Destroy")
	fmt.Println("q : quit")
	fmt.Println("---------------------------------------------------------------------")
}

func printNegotiated(sink *scmirroring.Sink) error {
	vcodec, err := sink.NegotiatedVideoCodec()
	if err != nil {
		return err
	}
	w, h, _ := sink.NegotiatedVideoResolution()
	fps, _ := sink.NegotiatedVideoFrameRate()
	acodec, _ := sink.NegotiatedAudioCodec()
	channels, _ := sink.NegotiatedAudioChannel()
	rate, _ := sink.NegotiatedAudioSampleRate()
	bits, _ := sink.NegotiatedAudioBitwidth()
	fmt.Printf("video: %s %dx%d@%d\n", vcodec, w, h, fps)
	fmt.Printf("audio: %s %dch %dHz %dbit\n", acodec, channels, rate, bits)
	return nil
}

func interpret(sink *scmirroring.Sink, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	switch fields[0] {
	case "a":
		if len(fields) < 3 {
			return false, scmirroring.ErrorInvalidParameter
		}
		fmt.Printf("Input source IP and port number IP[%s] Port[%s]\n", fields[1], fields[2])
		return false, sink.SetIPAndPort(fields[1], fields[2])
	case "p":
		return false, sink.Prepare()
	case "C":
		return false, sink.Connect()
	case "S":
		return false, sink.Start()
	case "P":
		return false, sink.Pause()
	case "R":
		return false, sink.Resume()
	case "I":
		return false, sink.Disconnect()
	case "u":
		return false, sink.Unprepare()
	case "g":
		return false, printNegotiated(sink)
	case "D":
		return false, sink.Destroy()
	case "q":
		fmt.Println("Quit Program")
		return true, nil
	default:
		fmt.Println("unknown menu")
	}
	return false, nil
}

func main() {
	sink, err := scmirroring.CreateSink()
	if err != nil {
		color.Red("scmirroring.CreateSink fail [%v]", err)
		os.Exit(1)
	}
	_ = sink.SetStateChangedCallback(func(e scmirroring.Error, state scmirroring.SinkState) {
		color.Green("\nReceived Callback error code[%s], state[%s]\n", e, state)
	})

	displayMenu()
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		quit, err := interpret(sink, scanner.Text())
		if err != nil {
			color.Red("Error Occured [%s] %v", scmirroring.ErrorCode(err), err)
		}
		if quit {
			break
		}
		displayMenu()
	}
}
