package layers

import (
	"fmt"

	"textnet/checkpoint"
	"textnet/tensor"
)

// ResidualUnit is the mobile inverted bottleneck: 1x1 expand, kxk depthwise,
// optional squeeze-excite gate, 1x1 project. The identity skip applies only
// when input and output channel counts match at unit stride.
type ResidualUnit struct {
	Expand    *ConvBNAct
	Depthwise *ConvBNAct
	SE        *SEBlock // nil when the unit has no gate
	Project   *ConvBNAct

	withSkip bool
}

// seRatio sizes the squeeze-excite bottleneck.
const seRatio = 4

// NewResidualUnit creates a unit taking numIn channels, expanding to numMid
// and projecting to numOut. act applies to the expand and depthwise stages;
// the projection has none.
func NewResidualUnit(numIn, numMid, numOut int, stride [2]int, kernelSize int, act string, useSE bool) (*ResidualUnit, error) {
	one := [2]int{1, 1}
	none := [2]int{0, 0}

	expand, err := NewConvBNAct(numIn, numMid, one, one, none, 1, act)
	if err != nil {
		return nil, err
	}
	pad := (kernelSize - 1) / 2
	depthwise, err := NewConvBNAct(numMid, numMid, [2]int{kernelSize, kernelSize}, stride, [2]int{pad, pad}, numMid, act)
	if err != nil {
		return nil, err
	}
	project, err := NewConvBNAct(numMid, numOut, one, one, none, 1, ActNone)
	if err != nil {
		return nil, err
	}

	u := &ResidualUnit{
		Expand:    expand,
		Depthwise: depthwise,
		Project:   project,
		withSkip:  numIn == numOut && stride == [2]int{1, 1},
	}
	if useSE {
		se, err := NewSEBlock(numMid, numMid, seRatio)
		if err != nil {
			return nil, err
		}
		u.SE = se
	}
	return u, nil
}

// WithSkip reports whether the unit adds its input to the projection.
func (u *ResidualUnit) WithSkip() bool { return u.withSkip }

// Forward runs expand, depthwise, gate, project, then the optional skip add.
func (u *ResidualUnit) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	y, err := u.Expand.Forward(x)
	if err != nil {
		return nil, err
	}
	y, err = u.Depthwise.Forward(y)
	if err != nil {
		return nil, err
	}
	if u.SE != nil {
		y, err = u.SE.Forward(y)
		if err != nil {
			return nil, err
		}
	}
	y, err = u.Project.Forward(y)
	if err != nil {
		return nil, err
	}
	if u.withSkip {
		return tensor.Add(x, y)
	}
	return y, nil
}

// LoadPaddle installs the unit at its enumerated position in the foreign
// namespace: the stem takes index 1, units count from 2 in build order.
func (u *ResidualUnit) LoadPaddle(tm checkpoint.TensorMap, index int) error {
	p := checkpoint.PaddleUnitPrefixes(index)
	if err := u.Expand.LoadPaddle(tm, p.Expand); err != nil {
		return err
	}
	if err := u.Depthwise.LoadPaddle(tm, p.Depthwise); err != nil {
		return err
	}
	if u.SE != nil {
		if err := u.SE.LoadPaddle(tm, p.SE); err != nil {
			return err
		}
	}
	return u.Project.LoadPaddle(tm, p.Linear)
}

// Parameters lists the unit's tensors under the given structured prefix.
func (u *ResidualUnit) Parameters(prefix string) []checkpoint.Entry {
	entries := u.Expand.Parameters(prefix + ".expand")
	entries = append(entries, u.Depthwise.Parameters(prefix+".depthwise")...)
	if u.SE != nil {
		entries = append(entries, u.SE.Parameters(prefix+".se")...)
	}
	return append(entries, u.Project.Parameters(prefix+".project")...)
}

// Tag returns a unique identifier string for this unit configuration.
func (u *ResidualUnit) Tag() string {
	tag := fmt.Sprintf("ResidualUnit[%s,%s", u.Expand.Tag(), u.Depthwise.Tag())
	if u.SE != nil {
		tag += "," + u.SE.Tag()
	}
	tag += "," + u.Project.Tag()
	if u.withSkip {
		tag += ",skip"
	}
	return tag + "]"
}
