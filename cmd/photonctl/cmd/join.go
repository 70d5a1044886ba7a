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
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/cyberarchives/photon-server-go/cmd/photonctl/client"
	"github.com/cyberarchives/photon-server-go/protocol"
)

var joinPasswordFlag string
var joinAskPasswordFlag bool

func init() {
	RootCmd.AddCommand(joinCmd)
	joinCmd.Flags().StringVarP(&joinPasswordFlag, "password", "p", "", "room password")
	joinCmd.Flags().BoolVarP(&joinAskPasswordFlag, "ask-password", "P", false, "prompt for the room password")
}

func joinRun(server, room, password string) error {
	c, err := client.Dial(server, rootTimeoutFlag)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", server, err)
	}
	defer c.Close()

	if _, err := c.Authenticate("photonctl"); err != nil {
		return err
	}
	params := map[byte]protocol.Value{
		protocol.ParamRoomName: room,
	}
	if password != "" {
		params[protocol.ParamPassword] = password
	}
	resp, err := c.Request(protocol.OpJoinRoom, params)
	if err != nil {
		return fmt.Errorf("joining %q: %w", room, err)
	}
	if resp.ReturnCode != protocol.ReturnOK {
		return fmt.Errorf("join refused: %d %s", resp.ReturnCode, resp.DebugMessage)
	}
	actorNr := resp.Parameters[protocol.ParamActorNr]
	masterID := resp.Parameters[protocol.ParamMasterClientID]
	fmt.Printf("joined %q as actor %v, master client %v\n", room, actorNr, masterID)
	return nil
}

var joinCmd = &cobra.Command{
	Use:   "join <room>",
	Short: "Join a room to verify it accepts members",
	Args:  cobra.ExactArgs(1),
	Run: func(c *cobra.Command, args []string) {
		ConfigureVerbosity()
		password := joinPasswordFlag
		if joinAskPasswordFlag {
			fmt.Fprint(os.Stderr, "Password: ")
			raw, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Fprintln(os.Stderr)
			if err != nil {
				log.Fatalf("reading password: %v", err)
			}
			password = string(raw)
		}
		if err := joinRun(rootServerFlag, args[0], password); err != nil {
			log.Fatal(err)
		}
	},
}
