package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/RudreshVeerkhare/rheidos/meshio"
	"github.com/RudreshVeerkhare/rheidos/session"
)

func (c *cli) solveCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "solve <mesh.obj> <constraints.txt>",
		Short: "Solve the constrained field on a mesh and print it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			s, err := session.New(cfg, c.logger)
			if err != nil {
				return err
			}
			defer s.Close()

			u, err := c.solveOnce(s, args[0], args[1])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return writeField(w, u)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write the field to a file instead of stdout")
	return cmd
}

// solveOnce loads the mesh and constraints into the session and solves.
func (c *cli) solveOnce(s *session.Session, meshPath, consPath string) ([]float64, error) {
	m, err := meshio.ReadOBJ(meshPath)
	if err != nil {
		return nil, err
	}
	mask, value, err := meshio.ReadConstraints(consPath, m.NumVerts())
	if err != nil {
		return nil, err
	}

	if err := s.SetMesh(m.Positions, m.Faces); err != nil {
		return nil, err
	}
	if err := s.SetConstraints(mask, value); err != nil {
		return nil, err
	}

	u, err := s.Solve()
	if err != nil {
		return nil, err
	}
	stop, iters := s.Status()
	c.logger.Info("solved", "verts", m.NumVerts(), "faces", m.NumFaces(), "stop", stop, "iters", iters)
	return u, nil
}

func writeField(w io.Writer, u []float64) error {
	bw := bufio.NewWriter(w)
	for i, v := range u {
		bw.WriteString(strconv.Itoa(i))
		bw.WriteByte(' ')
		bw.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		bw.WriteByte('\n')
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write field: %w", err)
	}
	return nil
}
