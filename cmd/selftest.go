// Copyright 2016--2022 Lightbits Labs Ltd.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// you may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"bytes"
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lightbitslabs/nvmf-compliance/pkg/clientconfig"
	"github.com/lightbitslabs/nvmf-compliance/pkg/hostapi"
	"github.com/lightbitslabs/nvmf-compliance/pkg/mockctrl"
	"github.com/lightbitslabs/nvmf-compliance/pkg/nvme"
)

const (
	selftestHostNQN = "nqn.2014-08.org.nvmexpress:uuid:5d1bd8b3-4b57-4b77-9c8b-1a8f5a0b6ad0"
	// Asynchronous Event Configuration, namespace attribute notices
	aecNamespaceAttr = 1 << 8
)

var errCheckFailed = errors.New("selftest failed")

// selftest drives the in memory controller through the host side encoders
// and checks every completion it gets back.
type selftest struct {
	ctrl   *mockctrl.Controller
	exec   hostapi.Executor
	conn   *clientconfig.ConnectionConfig
	cid    uint16
	cntlid uint16
	ns     *mockctrl.NamespaceConfig
}

type selftestCheck struct {
	name string
	run  func(ctx context.Context, st *selftest) error
}

type checkResult struct {
	Name   string `json:"name" yaml:"name"`
	Passed bool   `json:"passed" yaml:"passed"`
	Detail string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

type checkResults []checkResult

func (r checkResults) Headers() []string { return []string{"check", "result", "detail"} }

func (r checkResults) Rows() [][]string {
	rows := make([][]string, 0, len(r))
	for _, c := range r {
		result := "pass"
		if !c.Passed {
			result = "FAIL"
		}
		rows = append(rows, []string{c.Name, result, c.Detail})
	}
	return rows
}

func (st *selftest) execute(ctx context.Context, intent nvme.Intent) (*nvme.Response, error) {
	st.cid++
	return hostapi.ExecuteIntent(ctx, st.exec, intent, st.cid)
}

// expect executes intent and checks the completion status.
func (st *selftest) expect(ctx context.Context, intent nvme.Intent, sct, sc uint8, dnr bool) (*nvme.Response, error) {
	rsp, err := st.execute(ctx, intent)
	if err != nil {
		return nil, err
	}
	want := nvme.NewStatusField(sct, sc, dnr)
	if got := rsp.Completion.StatusField(); got != want {
		return rsp, fmt.Errorf("status %s(%#x), expected %s(%#x)", nvme.StatusName(got), uint16(got), nvme.StatusName(want), uint16(want))
	}
	return rsp, nil
}

func (st *selftest) expectSuccess(ctx context.Context, intent nvme.Intent) (*nvme.Response, error) {
	return st.expect(ctx, intent, nvme.SCTGeneric, nvme.SCSuccess, false)
}

func (st *selftest) readProperty(ctx context.Context, offset uint32) (uint64, error) {
	rsp, err := st.expectSuccess(ctx, nvme.PropertyGet{Offset: offset})
	if err != nil {
		return 0, err
	}
	return nvme.PropertyValue(&rsp.Completion, offset), nil
}

func (st *selftest) readCSTS(ctx context.Context) (*nvme.ControllerStatus, error) {
	value, err := st.readProperty(ctx, nvme.RegCSTS)
	if err != nil {
		return nil, err
	}
	return nvme.DecodeCSTS(uint32(value))
}

func selftestChecks() []selftestCheck {
	return []selftestCheck{
		{
			name: "identify before connect",
			run: func(ctx context.Context, st *selftest) error {
				_, err := st.expect(ctx, nvme.IdentifyController(), nvme.SCTGeneric, nvme.SCInvalidOpcode, true)
				return err
			},
		},
		{
			name: "connect with bad record format",
			run: func(ctx context.Context, st *selftest) error {
				connect, err := st.conn.ConnectIntent(0)
				if err != nil {
					return err
				}
				connect.RecFmt = 1
				rsp, err := st.expect(ctx, connect, nvme.SCTCommandSpecific, nvme.SCConnectFormat, true)
				if err != nil {
					return err
				}
				if got := nvme.ConnectResponseFromCompletion(&rsp.Completion); got.IPO != 40 {
					return fmt.Errorf("invalid parameter offset %d, expected 40", got.IPO)
				}
				return nil
			},
		},
		{
			name: "connect admin queue",
			run: func(ctx context.Context, st *selftest) error {
				connect, err := st.conn.ConnectIntent(0)
				if err != nil {
					return err
				}
				rsp, err := st.expectSuccess(ctx, connect)
				if err != nil {
					return err
				}
				st.cntlid = nvme.ConnectResponseFromCompletion(&rsp.Completion).CntlID
				return nil
			},
		},
		{
			name: "identify before enable",
			run: func(ctx context.Context, st *selftest) error {
				_, err := st.expect(ctx, nvme.IdentifyController(), nvme.SCTGeneric, nvme.SCCommandSeqError, true)
				return err
			},
		},
		{
			name: "read capabilities",
			run: func(ctx context.Context, st *selftest) error {
				value, err := st.readProperty(ctx, nvme.RegCAP)
				if err != nil {
					return err
				}
				capReg, err := nvme.DecodeCap(value)
				if err != nil {
					return err
				}
				if capReg.MQES == 0 || capReg.CSS&1 == 0 {
					return fmt.Errorf("unexpected capabilities %#x", value)
				}
				return nil
			},
		},
		{
			name: "property width mismatch",
			run: func(ctx context.Context, st *selftest) error {
				_, err := st.expect(ctx, nvme.PropertyGet{Offset: nvme.RegCC, Width: nvme.Width64}, nvme.SCTGeneric, nvme.SCInvalidField, true)
				return err
			},
		},
		{
			name: "enable controller",
			run: func(ctx context.Context, st *selftest) error {
				cc := &nvme.ControllerConfiguration{EN: 1, IOSQES: 6, IOCQES: 4}
				value, err := cc.Value()
				if err != nil {
					return err
				}
				if _, err := st.expectSuccess(ctx, nvme.PropertySet{Offset: nvme.RegCC, Value: uint64(value)}); err != nil {
					return err
				}
				csts, err := st.readCSTS(ctx)
				if err != nil {
					return err
				}
				if csts.RDY != 1 || csts.CFS != 0 {
					return fmt.Errorf("controller not ready: %+v", *csts)
				}
				return nil
			},
		},
		{
			name: "identify controller",
			run: func(ctx context.Context, st *selftest) error {
				rsp, err := st.expectSuccess(ctx, nvme.IdentifyController())
				if err != nil {
					return err
				}
				id := &nvme.IDCtrl{}
				if err := id.UnmarshalBinary(rsp.Data); err != nil {
					return err
				}
				if id.CntlID != st.cntlid || id.SubNqn != st.conn.Subsysnqn {
					return fmt.Errorf("identify reports controller %d of %s", id.CntlID, id.SubNqn)
				}
				return nil
			},
		},
		{
			name: "active namespace list",
			run: func(ctx context.Context, st *selftest) error {
				rsp, err := st.expectSuccess(ctx, nvme.IdentifyActiveNamespaces(0))
				if err != nil {
					return err
				}
				list := &nvme.ActiveNamespaceList{}
				if err := list.UnmarshalBinary(rsp.Data); err != nil {
					return err
				}
				got, want := list.List(), st.ctrl.Namespaces()
				if fmt.Sprint(got) != fmt.Sprint(want) {
					return fmt.Errorf("active namespaces %v, expected %v", got, want)
				}
				return nil
			},
		},
		{
			name: "unsupported log page",
			run: func(ctx context.Context, st *selftest) error {
				_, err := st.expect(ctx, nvme.NewGetLogPage(0x7f, 512), nvme.SCTCommandSpecific, nvme.SCInvalidLogPage, true)
				return err
			},
		},
		{
			name: "saving features",
			run: func(ctx context.Context, st *selftest) error {
				set := nvme.NewSetFeatures(nvme.FeatKATO, nvme.KATODefault)
				set.Save = true
				_, err := st.expect(ctx, set, nvme.SCTCommandSpecific, nvme.SCFeatureNotSaveable, true)
				return err
			},
		},
		{
			name: "number of queues",
			run: func(ctx context.Context, st *selftest) error {
				rsp, err := st.expectSuccess(ctx, nvme.SetNumberOfQueues(4, 4))
				if err != nil {
					return err
				}
				// zero based, a controller grants at least one queue
				queues := nvme.NumberOfQueuesFromResult(rsp.Result())
				if queues.NSQ > 3 || queues.NCQ > 3 {
					return fmt.Errorf("granted %d/%d queues, requested 4/4", queues.NSQ+1, queues.NCQ+1)
				}
				return nil
			},
		},
		{
			name: "keep alive",
			run: func(ctx context.Context, st *selftest) error {
				_, err := st.expectSuccess(ctx, nvme.KeepAlive{})
				return err
			},
		},
		{
			name: "connect io queue",
			run: func(ctx context.Context, st *selftest) error {
				connect, err := st.conn.ConnectIntentFor(1, st.cntlid)
				if err != nil {
					return err
				}
				_, err = st.expectSuccess(ctx, connect)
				return err
			},
		},
		{
			name: "write and read back",
			run: func(ctx context.Context, st *selftest) error {
				if st.ns == nil {
					return nil
				}
				payload := bytes.Repeat([]byte{0xa5}, int(st.ns.BlockSize))
				if _, err := st.expectSuccess(ctx, nvme.Write{NSID: st.ns.ID, NLB: 1, Data: payload}); err != nil {
					return err
				}
				rsp, err := st.expectSuccess(ctx, nvme.Read{NSID: st.ns.ID, NLB: 1, BlockSize: st.ns.BlockSize})
				if err != nil {
					return err
				}
				if !bytes.Equal(payload, rsp.Data) {
					return errors.New("read back data differs")
				}
				return nil
			},
		},
		{
			name: "read beyond capacity",
			run: func(ctx context.Context, st *selftest) error {
				if st.ns == nil {
					return nil
				}
				read := nvme.Read{NSID: st.ns.ID, SLBA: st.ns.Blocks, NLB: 1, BlockSize: st.ns.BlockSize}
				_, err := st.expect(ctx, read, nvme.SCTGeneric, nvme.SCLBARange, true)
				return err
			},
		},
		{
			name: "asynchronous event limit",
			run: func(ctx context.Context, st *selftest) error {
				if _, err := st.expectSuccess(ctx, nvme.NewSetFeatures(nvme.FeatAsyncEvent, aecNamespaceAttr)); err != nil {
					return err
				}
				var handles []hostapi.Handle
				for i := 0; i <= int(st.ctrl.Config().AERL); i++ {
					st.cid++
					h, err := st.exec.Submit(ctx, nvme.Build(nvme.AsyncEventRequest{}, st.cid))
					if err != nil {
						return err
					}
					handles = append(handles, h)
				}
				if _, err := st.expect(ctx, nvme.AsyncEventRequest{}, nvme.SCTCommandSpecific, nvme.SCAsyncLimit, true); err != nil {
					return err
				}

				// a namespace attach completes the oldest request
				nsid := st.ctrl.Namespaces()
				next := uint32(1)
				if len(nsid) > 0 {
					next = nsid[len(nsid)-1] + 1
				}
				if err := st.ctrl.AttachNamespace(mockctrl.NamespaceConfig{ID: next, BlockSize: 512, Blocks: 8}); err != nil {
					return err
				}
				rsp, done, err := st.exec.Poll(handles[0])
				if err != nil {
					return err
				}
				if !done {
					return errors.New("namespace attach did not complete an event request")
				}
				if got := mockctrl.AsyncEventFromResult(rsp.Result()); got != mockctrl.NamespaceChangedEvent() {
					return fmt.Errorf("event %+v, expected namespace attribute changed", got)
				}
				for _, h := range handles[1:] {
					if err := st.exec.Cancel(h); err != nil {
						return err
					}
				}
				return nil
			},
		},
		{
			name: "shutdown",
			run: func(ctx context.Context, st *selftest) error {
				cc := &nvme.ControllerConfiguration{EN: 1, IOSQES: 6, IOCQES: 4, SHN: nvme.ShutdownNormal}
				value, err := cc.Value()
				if err != nil {
					return err
				}
				if _, err := st.expectSuccess(ctx, nvme.PropertySet{Offset: nvme.RegCC, Value: uint64(value)}); err != nil {
					return err
				}
				csts, err := st.readCSTS(ctx)
				if err != nil {
					return err
				}
				if csts.SHST != nvme.ShutdownStatusComplete {
					return fmt.Errorf("shutdown status %d", csts.SHST)
				}
				return nil
			},
		},
	}
}

// runSelftest runs the checks against a controller made from cfg. A failed
// check stops the run, the following checks depend on its state.
func runSelftest(ctx context.Context, cfg mockctrl.Config) (checkResults, error) {
	ctrl, err := mockctrl.New(cfg)
	if err != nil {
		return nil, err
	}
	st := &selftest{
		ctrl: ctrl,
		exec: hostapi.Instrument("mock", ctrl),
		conn: &clientconfig.ConnectionConfig{
			Transport: "tcp",
			Traddr:    "127.0.0.1",
			Trsvcid:   4420,
			Subsysnqn: ctrl.Config().SubsysNQN,
			Hostnqn:   selftestHostNQN,
		},
	}
	if namespaces := ctrl.Config().Namespaces; len(namespaces) > 0 {
		st.ns = &namespaces[0]
	}

	results := checkResults{}
	for _, check := range selftestChecks() {
		log := logrus.WithField("check", check.name)
		if err := check.run(ctx, st); err != nil {
			log.WithError(err).Error("check failed")
			results = append(results, checkResult{Name: check.name, Detail: err.Error()})
			return results, errCheckFailed
		}
		log.Debug("check passed")
		results = append(results, checkResult{Name: check.name, Passed: true})
	}
	return results, nil
}

func newSelftestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "selftest",
		Short: "Run the encoders against the in memory controller",
		Long: `Run a sequence of commands against the in memory controller configured
under "mock" and check every completion: connect, property access,
identify, features, io and asynchronous events.`,
		SilenceUsage:      true,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), appConfig.Timeout)
			defer cancel()
			results, err := runSelftest(ctx, appConfig.Mock)
			if perr := print(results, currentFormat()); perr != nil {
				return perr
			}
			return err
		},
	}
}
