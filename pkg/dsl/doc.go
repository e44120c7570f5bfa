/*
Package dsl builds workflow definitions in Go instead of YAML.

Steps built here carry typed operations and options; the workflow machine
runs them exactly like their YAML counterparts. Template parameters are not
interpolated into typed values.

	def, err := dsl.New("shift").
		Base(water).
		Append(domain.Translation{Select: domain.SelectAll(), Vector: domain.Vec3{1, 0, 0}}).
		Named("shifted").
		Output("water.json").
		Build()
*/
package dsl
