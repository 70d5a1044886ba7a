/*
Copyright (c) the photon-server-go authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cmd

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cyberarchives/photon-server-go/cmd/photonctl/client"
)

var pingCountFlag int

func init() {
	RootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVarP(&pingCountFlag, "count", "c", 3, "number of pings to send")
}

func pingRun(server string, count int) error {
	c, err := client.Dial(server, rootTimeoutFlag)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", server, err)
	}
	defer c.Close()

	var total time.Duration
	ok := 0
	for i := 0; i < count; i++ {
		rtt, err := c.Ping()
		if err != nil {
			fmt.Printf("%s ping %d: %v\n", color.RedString("[FAIL]"), i+1, err)
			continue
		}
		fmt.Printf("%s ping %d: rtt %v\n", color.GreenString("[ OK ]"), i+1, rtt)
		total += rtt
		ok++
	}
	if ok == 0 {
		return fmt.Errorf("all %d pings failed", count)
	}
	fmt.Printf("avg rtt %v over %d/%d pings\n", total/time.Duration(ok), ok, count)
	return nil
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Measure the command round trip time",
	Run: func(c *cobra.Command, args []string) {
		ConfigureVerbosity()
		if err := pingRun(rootServerFlag, pingCountFlag); err != nil {
			log.Fatal(err)
		}
	},
}
