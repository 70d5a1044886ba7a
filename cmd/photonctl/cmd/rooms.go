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
	"sort"

	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cyberarchives/photon-server-go/cmd/photonctl/client"
	"github.com/cyberarchives/photon-server-go/protocol"
)

func init() {
	RootCmd.AddCommand(roomsCmd)
}

type roomRow struct {
	name        string
	playerCount int
	maxPlayers  int
	isOpen      bool
	isVisible   bool
	properties  int
}

func roomsRun(server string) error {
	c, err := client.Dial(server, rootTimeoutFlag)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", server, err)
	}
	defer c.Close()

	if _, err := c.Authenticate("photonctl"); err != nil {
		return err
	}
	resp, err := c.Request(protocol.OpGetRoomList, nil)
	if err != nil {
		return fmt.Errorf("getting room list: %w", err)
	}
	if resp.ReturnCode != protocol.ReturnOK {
		return fmt.Errorf("room list failed: %d %s", resp.ReturnCode, resp.DebugMessage)
	}

	list, _ := resp.Parameters[protocol.ParamRoomList].([]protocol.Value)
	rows := make([]roomRow, 0, len(list))
	for _, e := range list {
		entry, ok := e.(map[protocol.Value]protocol.Value)
		if !ok {
			log.Debugf("Skipping malformed room entry %T", e)
			continue
		}
		row := roomRow{}
		row.name, _ = entry["name"].(string)
		row.playerCount = intField(entry, "playerCount")
		row.maxPlayers = intField(entry, "maxPlayers")
		row.isOpen, _ = entry["isOpen"].(bool)
		row.isVisible, _ = entry["isVisible"].(bool)
		if props, ok := entry["properties"].(map[protocol.Value]protocol.Value); ok {
			row.properties = len(props)
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].name < rows[j].name })

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"name", "players", "max", "open", "visible", "properties"})
	for _, r := range rows {
		table.Append([]string{
			r.name,
			fmt.Sprintf("%d", r.playerCount),
			fmt.Sprintf("%d", r.maxPlayers),
			fmt.Sprintf("%v", r.isOpen),
			fmt.Sprintf("%v", r.isVisible),
			fmt.Sprintf("%d", r.properties),
		})
	}
	table.Render()
	return nil
}

func intField(entry map[protocol.Value]protocol.Value, key string) int {
	switch n := entry[key].(type) {
	case byte:
		return int(n)
	case int16:
		return int(n)
	case int32:
		return int(n)
	case int64:
		return int(n)
	}
	return 0
}

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List the rooms on the server",
	Run: func(c *cobra.Command, args []string) {
		ConfigureVerbosity()
		if err := roomsRun(rootServerFlag); err != nil {
			log.Fatal(err)
		}
	},
}
