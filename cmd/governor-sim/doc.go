// Package main provides governor-sim, a command that drives the performance
// governor through a simulated audio callback load.
//
// # Overview
//
// governor-sim builds a governor from a YAML config file and environment
// overrides, patches a small effect chain (voices, then every sheddable
// effect, then the output), and feeds it a linear CPU load ramp. Whenever
// the governor disables an effect, the simulator removes that node from the
// chain and bridges its neighbours, so graph batching and compilation run
// alongside load measurement. A colored report summarizes the run.
//
// # Modes
//
// Virtual mode (the default) advances a mock clock one callback at a time
// and calls Iterate on the governor's iteration interval. It is
// deterministic and finishes as fast as the CPU allows.
//
// Live mode (-live) runs the callbacks on a locked OS thread in real time,
// busy-spinning for the target share of each buffer and timing them with
// meter.Stopwatch, while the governor's Run loop drains the samples.
//
// # Usage
//
//	go run ./cmd/governor-sim
//	go run ./cmd/governor-sim -start 0.5 -end 1.2 -steps 4000
//	go run ./cmd/governor-sim -live -steps 500 -metrics-addr :9464 -hold 30s
//	go run ./cmd/governor-sim -config governor.yaml -env .env -log-file sim.log
//
// # Exit Codes
//
//   - 0: the run completed
//   - 1: configuration error or failed run
package main
