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
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/davecgh/go-spew/spew"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cyberarchives/photon-server-go/protocol"
)

func init() {
	RootCmd.AddCommand(decodeCmd)
}

// decodeRun pretty-prints a hex dump of either a full packet or a bare
// tagged value.
func decodeRun(hexInput string) error {
	cleaned := strings.Map(func(r rune) rune {
		if strings.ContainsRune(" \t\r\n:", r) {
			return -1
		}
		return r
	}, hexInput)
	raw, err := hex.DecodeString(cleaned)
	if err != nil {
		return fmt.Errorf("parsing hex input: %w", err)
	}
	if len(raw) == 0 {
		return fmt.Errorf("empty input")
	}

	if len(raw) >= protocol.PacketHeaderLength && binary.BigEndian.Uint16(raw) == protocol.Signature {
		var sb protocol.StreamBuffer
		sb.Feed(raw)
		for {
			pkt, err := sb.Next()
			if err != nil {
				return err
			}
			if pkt == nil {
				break
			}
			fmt.Printf("packet peer=%d payload=%d bytes\n", pkt.PeerID, len(pkt.Payload))
			cmds, derr := protocol.DecodeCommands(pkt.Payload)
			for _, c := range cmds {
				fmt.Printf("command %s\n", protocol.CommandName(c.Kind))
				spew.Dump(c)
			}
			if derr != nil {
				return derr
			}
		}
		return nil
	}

	v, err := protocol.DecodeValue(raw)
	if err != nil {
		return err
	}
	spew.Dump(v)
	return nil
}

var decodeCmd = &cobra.Command{
	Use:   "decode [hex]",
	Short: "Decode a hex dump of a packet or a tagged value",
	Args:  cobra.MaximumNArgs(1),
	Run: func(c *cobra.Command, args []string) {
		ConfigureVerbosity()
		var input string
		if len(args) == 1 {
			input = args[0]
		} else {
			raw, err := io.ReadAll(os.Stdin)
			if err != nil {
				log.Fatalf("reading stdin: %v", err)
			}
			input = string(raw)
		}
		if err := decodeRun(input); err != nil {
			log.Fatal(err)
		}
	},
}
