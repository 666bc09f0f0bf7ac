package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/life-stream-dev/go-scmirroring/internal/config"
	"github.com/life-stream-dev/go-scmirroring/pkg/scmirroring"
)

var resolutions = []scmirroring.Resolution{
	scmirroring.Resolution1920x1080P30,
	scmirroring.Resolution1280x720P30,
	scmirroring.Resolution960x540P30,
	scmirroring.Resolution640x360P30,
}

func displayMenu() {
	title := color.New(color.FgCyan, color.Bold)
	fmt.Println()
	title.Println("=====================================================================")
	title.Println("                SCMIRRORING Testsuite (press q to quit)")
	title.Println("=====================================================================")
	fmt.Println("a : a ip port (ex. a 192.168.49.1 2022)")
	fmt.Println("c : set resolution (ex. c 0 (0 : 1920x1080_P30, 1 : 1280x720_P30, 2 : 960x540_P30, 3: 640x360_P30)")
	fmt.Println("f : set connection mode (ex. f 0 (0 : wifi_direct)")
	fmt.Println("n : set server name (ex. n scmirroring)")
	fmt.Println("m : set multisink (ex. m 1)")
	fmt.Println("C : Connect")
	fmt.Println("I : dIsconnect")
	fmt.Println("S : Start")
	fmt.Println("P : Pause")
	fmt.Println("R : Resume")
	fmt.Println("T : sTop")
	fmt.Println("D : Destroy")
	fmt.Println("q : quit")
	fmt.Println("---------------------------------------------------------------------")
}

func interpret(src *scmirroring.Source, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	arg := func(i int) string {
		if i < len(fields) {
			return fields[i]
		}
		return ""
	}

	switch fields[0] {
	case "a":
		fmt.Printf("Input server IP and port number IP[%s] Port[%s]\n", arg(1), arg(2))
		return false, src.SetIPAndPort(arg(1), arg(2))
	case "c":
		idx, convErr := strconv.Atoi(arg(1))
		if convErr != nil || idx < 0 || idx >= len(resolutions) {
			return false, scmirroring.ErrorInvalidParameter
		}
		fmt.Printf("Set Resolution[%d]\n", idx)
		return false, src.SetResolution(resolutions[idx])
	case "f":
		mode, _ := strconv.Atoi(arg(1))
		fmt.Printf("Connection mode [%d]\n", mode)
		return false, src.SetConnectionMode(scmirroring.ConnectionMode(mode))
	case "n":
		return false, src.SetServerName(arg(1))
	case "m":
		return false, src.SetMultisinkAbility(arg(1) == "1")
	case "C":
		fmt.Println("Connect")
		return false, src.Connect()
	case "I":
		fmt.Println("dIsconnect")
		return false, src.Disconnect()
	case "S":
		fmt.Println("Start")
		return false, src.Start()
	case "P":
		fmt.Println("Pause")
		return false, src.Pause()
	case "R":
		fmt.Println("Resume")
		return false, src.Resume()
	case "T":
		fmt.Println("Stop")
		return false, src.Stop()
	case "D":
		fmt.Println("Destroy")
		return false, src.Destroy()
	case "q":
		fmt.Println("Quit Program")
		return true, nil
	default:
		fmt.Println("unknown menu")
	}
	return false, nil
}

func main() {
	socketPath := flag.String("socket", config.DefaultSocketPath, "command socket of the miracast server")
	flag.Parse()

	src, err := scmirroring.Create(scmirroring.WithSocketPath(*socketPath))
	if err != nil {
		color.Red("scmirroring.Create fail [%v]", err)
		os.Exit(1)
	}
	_ = src.SetStateChangedCallback(func(e scmirroring.Error, state scmirroring.State) {
		color.Green("\nReceived Callback error code[%s], state[%s]\n", e, state)
	})

	displayMenu()
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		quit, err := interpret(src, scanner.Text())
		if err != nil {
			color.Red("Error Occured [%s] %v", scmirroring.ErrorCode(err), err)
		}
		if quit {
			break
		}
		displayMenu()
	}
}
