// Package render writes scan results in the formats the CLI offers.
//
// Pair formats (list, name, addr, csv, table, glm) only use each device's
// name and address. Record formats (json, yaml, pretty) also include what the
// device reported about itself.
//
//	list    [["plug1","10.0.0.1"]]
//	name    {"plug1":"10.0.0.1"}
//	addr    {"10.0.0.1":"plug1"}
//	csv     plug1,10.0.0.1
//	table   name,addr / plug1,10.0.0.1
//	glm     GridLAB-D model with one device object per result
//	json    array of device records
//	yaml    list of device records
//	pretty  terminal table
//
// csv and table honour Options.ColDelim, Options.RowDelim and Options.Quote.
package render
