// Command maskrefine trains and runs the optical-flow guided mask
// refinement network.
//
//	maskrefine config init --path maskrefine.toml
//	maskrefine train --config maskrefine.toml
//	maskrefine refine --prev 00041.jpg --curr 00042.jpg --mask coarse.png --out refined.png
//	maskrefine history logs/maskrefine_history_2020-07-05_09-04-35.csv
package main
